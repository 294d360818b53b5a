// Package profiling starts optional pprof and Pyroscope profilers at boot.
package profiling

import (
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

// Config controls both profilers. Everything is off unless enabled.
type Config struct {
	PprofEnabled bool   `env:"ENABLE_PROFILING" yaml:"pprof_enabled"`
	PprofPort    string `env:"PPROF_PORT"       yaml:"pprof_port"`

	PyroscopeEnabled     bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope_enabled"`
	PyroscopeServerURL   string `env:"PYROSCOPE_SERVER_URL"        yaml:"pyroscope_server_url"`
	PyroscopeEnvironment string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"pyroscope_environment"`
}

// SetDefaults fills ports and URLs.
func (c *Config) SetDefaults() {
	if c.PprofPort == "" {
		c.PprofPort = "6060"
	}
	if c.PyroscopeServerURL == "" {
		c.PyroscopeServerURL = "http://pyroscope:4040"
	}
	if c.PyroscopeEnvironment == "" {
		c.PyroscopeEnvironment = "development"
	}
}

// StartPprofServer serves /debug/pprof on localhost when enabled.
// It returns the server so the caller can shut it down, or nil when disabled.
func StartPprofServer(cfg Config, log infralogger.Logger) *http.Server {
	if !cfg.PprofEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// localhost only
	srv := &http.Server{
		Addr:              "localhost:" + cfg.PprofPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("pprof server starting", infralogger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server stopped", infralogger.Error(err))
		}
	}()

	return srv
}
