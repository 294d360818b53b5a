package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

type ingestRequest struct {
	DatasetID string         `json:"dataset_id"`
	Input     map[string]any `json:"input"`
}

// analyzeRequest leaves Limit nil to use the configured batch size.
type analyzeRequest struct {
	Limit *int `json:"limit"`
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// startIngest starts an ingest job
// POST /api/v1/ingest
func (r *Router) startIngest(c *gin.Context) {
	if r.deps.Ingest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task runner is not configured"})
		return
	}

	var req ingestRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r.startJob(c, service.KindIngest, r.deps.Ingest(service.IngestOptions{
		DatasetID: req.DatasetID,
		Input:     req.Input,
	}))
}

// startAnalyze starts an analysis batch
// POST /api/v1/analyze
func (r *Router) startAnalyze(c *gin.Context) {
	if r.deps.Analyze == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm provider is not configured"})
		return
	}

	var req analyzeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	var limit int
	if req.Limit != nil {
		limit = *req.Limit
		if limit < 1 || limit > r.deps.MaxBatchSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("limit must be between 1 and %d", r.deps.MaxBatchSize),
			})
			return
		}
	}

	r.startJob(c, service.KindAnalyze, r.deps.Analyze(service.AnalyzeOptions{Limit: limit}))
}

func (r *Router) startJob(c *gin.Context, kind service.JobKind, fn service.JobFunc) {
	job, err := r.deps.Jobs.Start(c.Request.Context(), kind, fn)
	if errors.Is(err, service.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": string(kind) + " is already running"})
		return
	}
	if err != nil {
		infralogger.FromContext(c.Request.Context()).Error("Failed to start job", infralogger.String("kind", string(kind)), infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start " + string(kind)})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// listJobs returns recent jobs, newest first
// GET /api/v1/jobs
func (r *Router) listJobs(c *gin.Context) {
	jobs := r.deps.Jobs.List()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// getJob returns one job
// GET /api/v1/jobs/:id
func (r *Router) getJob(c *gin.Context) {
	job, ok := r.deps.Jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
