package api

import (
	"time"

	"github.com/gin-gonic/gin"
	infragin "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/gin"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/config"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// NewServer creates the HTTP server. checks become /health components.
func NewServer(
	h Handlers,
	opts RouteOptions,
	cfg *config.Config,
	log infralogger.Logger,
	checks map[string]infragin.HealthChecker,
) *infragin.Server {
	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout).
		WithCORSOrigins(cfg.Service.CORSOrigins)

	for name, check := range checks {
		builder = builder.WithHealthCheck(name, check)
	}

	return builder.
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, h, opts)
		}).
		Build()
}
