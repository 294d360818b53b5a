// Package api exposes ingest, analyze, jobs, records and job events over HTTP.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	infragin "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/jwt"
	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

// RecordReader reads stored records.
type RecordReader interface {
	ListRecords(ctx context.Context, filter domain.RecordFilter) (*domain.RecordPage, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*domain.Record, error)
}

// JobTracker starts and reports background jobs.
type JobTracker interface {
	Start(ctx context.Context, kind service.JobKind, fn service.JobFunc) (service.Job, error)
	Get(id string) (service.Job, bool)
	List() []service.Job
}

// Deps are the router's collaborators. Ingest or Analyze left nil means the
// operation is not configured and its endpoint answers 503.
type Deps struct {
	Records      RecordReader
	Jobs         JobTracker
	Ingest       func(opts service.IngestOptions) service.JobFunc
	Analyze      func(opts service.AnalyzeOptions) service.JobFunc
	Broker       sse.Broker
	JWTSecret    string
	MaxBatchSize int
	Logger       infralogger.Logger
}

// Router holds the API dependencies.
type Router struct {
	deps Deps
}

// NewRouter creates a router.
func NewRouter(deps Deps) *Router {
	if deps.MaxBatchSize <= 0 {
		deps.MaxBatchSize = service.DefaultMaxBatchSize
	}
	if deps.Logger == nil {
		deps.Logger = infralogger.NewNop()
	}
	return &Router{deps: deps}
}

// NewServer builds the HTTP server with health checks, metrics and these routes.
func (r *Router) NewServer(cfg *infragin.Config, opts infragin.Options) *infragin.Server {
	return infragin.NewServer(cfg, r.deps.Logger, opts, r.SetupRoutes)
}

// SetupRoutes registers the /api/v1 routes.
func (r *Router) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	v1.GET("/jobs", r.listJobs)
	v1.GET("/jobs/:id", r.getJob)
	v1.GET("/records", r.listRecords)
	v1.GET("/records/:id", r.getRecord)

	if r.deps.Broker != nil {
		v1.GET("/events", sse.Handler(r.deps.Broker, r.deps.Logger, eventOptions))
	}

	write := v1.Group("")
	if r.deps.JWTSecret != "" {
		write.Use(jwt.Middleware(r.deps.JWTSecret))
	}
	write.POST("/ingest", r.startIngest)
	write.POST("/analyze", r.startAnalyze)
}

// eventOptions narrows the stream to one job when ?job_id= is given.
func eventOptions(c *gin.Context) []sse.ClientOption {
	if jobID := c.Query("job_id"); jobID != "" {
		return []sse.ClientOption{sse.WithJobFilter(jobID)}
	}
	return nil
}
