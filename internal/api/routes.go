// Package api wires the clickcounter HTTP routes.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/auth"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/handler"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Config *handler.ConfigHandler
	Click  *handler.ClickHandler
	Static *handler.StaticHandler
}

// RouteOptions carries the cross-cutting pieces of the router.
type RouteOptions struct {
	ServiceName string
	Version     string
	Gate        *auth.Gate
	// Limiter rate limits /c per client IP. Nil disables rate limiting.
	Limiter *middleware.LimiterStore
	Metrics *metrics.Metrics
}

// SetupRoutes configures all API routes.
// Health routes are registered by the infrastructure gin builder.
func SetupRoutes(router *gin.Engine, h Handlers, opts RouteOptions) {
	// Bare /config must stay a 404 instead of redirecting to /config/.
	router.RedirectTrailingSlash = false

	requireAuth := middleware.BasicAuth(opts.Gate)

	router.GET("/", handler.Index(opts.ServiceName, opts.Version))
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	config := router.Group("/config", requireAuth)
	config.GET("/:domain", h.Config.Get)
	config.POST("/:domain", h.Config.Merge)
	config.DELETE("/:domain", h.Config.Delete)

	// Click accounting is write-only.
	click := router.Group("/c")
	click.GET("", handler.MethodNotAllowed(http.MethodPost))
	click.Use(middleware.BotFilter())
	if opts.Limiter != nil {
		click.Use(middleware.RateLimiter(opts.Limiter))
	}
	click.POST("", h.Click.HandleClick)

	router.GET("/static/*path", h.Static.Get)
	router.POST("/static/*path", requireAuth, h.Static.Put)
}
