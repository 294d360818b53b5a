package gin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/monitoring"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of an individual health check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker performs one dependency check.
type HealthChecker func(ctx context.Context) CheckResult

// HealthOptions configures the health endpoint behavior.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	StartTime      time.Time
	Checks         map[string]HealthChecker
}

var processStart = sync.OnceValue(time.Now)

// RegisterHealthRoutes adds GET/HEAD /health and GET /health/memory.
func RegisterHealthRoutes(router *gin.Engine, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = processStart()
	}

	router.GET("/health", healthHandler(opts))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health/memory", gin.WrapF(monitoring.MemoryHealthHandler))
}

func healthHandler(opts HealthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: opts.ServiceName,
			Version: opts.ServiceVersion,
			Uptime:  time.Since(opts.StartTime).Truncate(time.Second).String(),
		}

		if len(opts.Checks) > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()

			response.Checks = make(map[string]CheckResult, len(opts.Checks))
			for name, checker := range opts.Checks {
				result := checker(ctx)
				response.Checks[name] = result
				response.Status = worse(response.Status, result.Status)
			}
		}

		statusCode := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	}
}

func worse(current, next HealthStatus) HealthStatus {
	switch {
	case next == HealthStatusUnhealthy:
		return HealthStatusUnhealthy
	case next == HealthStatusDegraded && current == HealthStatusHealthy:
		return HealthStatusDegraded
	default:
		return current
	}
}

// PingChecker reports failStatus when ping fails. Use unhealthy for required
// dependencies and degraded for optional ones.
func PingChecker(component string, failStatus HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start).String()

		if err != nil {
			return CheckResult{Status: failStatus, Message: component + " connection failed", Latency: latency}
		}
		return CheckResult{Status: HealthStatusHealthy, Message: component + " connection OK", Latency: latency}
	}
}
