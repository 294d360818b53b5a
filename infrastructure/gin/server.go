package gin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

// Server is an HTTP server with the standard middleware stack applied.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger infralogger.Logger
	config *Config
}

// Options carries the optional pieces of a Server.
type Options struct {
	// Checks are reported by GET /health.
	Checks map[string]HealthChecker
	// Metrics instruments every request and serves GET /metrics when set.
	Metrics *HTTPMetrics
}

// NewServer applies middleware in order (recovery, request id, access log,
// metrics, CORS), registers health routes, then calls setupRoutes.
func NewServer(cfg *Config, log infralogger.Logger, opts Options, setupRoutes func(*gin.Engine)) *Server {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDLoggerMiddleware(log))
	router.Use(LoggerMiddleware(log))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
		router.GET("/metrics", opts.Metrics.Handler())
	}
	if cfg.CORS.Enabled {
		router.Use(CORSMiddleware(cfg.CORS))
	}

	RegisterHealthRoutes(router, HealthOptions{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Checks:         opts.Checks,
	})

	if setupRoutes != nil {
		setupRoutes(router)
	}

	return &Server{
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		logger: log,
		config: cfg,
	}
}

// Router returns the underlying Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		infralogger.String("address", s.server.Addr),
		infralogger.String("service", s.config.ServiceName),
		infralogger.String("version", s.config.ServiceVersion),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains connections within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", infralogger.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

// Run serves until ctx is cancelled, then shuts down. Signal handling
// belongs to the caller (signal.NotifyContext in the serve command).
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	//nolint:contextcheck // ctx is already cancelled; shutdown needs its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout+time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
