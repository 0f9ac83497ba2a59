package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/monitoring"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

// Health states, ordered from best to worst.
const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// healthCheckTimeout bounds each individual check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker performs one health check.
type HealthChecker func(ctx context.Context) CheckResult

// HealthOptions configures the health routes.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	StartTime      time.Time
	Checks         map[string]HealthChecker
}

// RegisterHealthRoutes adds GET /health, HEAD /health and GET /health/memory.
func RegisterHealthRoutes(router gin.IRoutes, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	router.GET("/health", healthHandler(opts))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitoring.ReadMemoryHealth())
	})
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
			response.Checks = make(map[string]CheckResult, len(opts.Checks))
			for name, check := range opts.Checks {
				ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
				result := check(ctx)
				cancel()

				response.Checks[name] = result
				response.Status = worse(response.Status, result.Status)
			}
		}

		status := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response)
	}
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{
		HealthStatusHealthy:   0,
		HealthStatusDegraded:  1,
		HealthStatusUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// PingChecker adapts a ping function into a HealthChecker. Failures of a
// critical dependency report unhealthy, others degraded.
func PingChecker(component string, critical bool, ping func(ctx context.Context) error) HealthChecker {
	failed := HealthStatusDegraded
	if critical {
		failed = HealthStatusUnhealthy
	}

	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start).String()

		if err != nil {
			return CheckResult{Status: failed, Message: component + " unreachable", Latency: latency}
		}
		return CheckResult{Status: HealthStatusHealthy, Message: component + " OK", Latency: latency}
	}
}
