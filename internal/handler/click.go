package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/middleware"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/tracker"
)

// ClickHandler serves /c.
type ClickHandler struct {
	engine  *tracker.Engine
	logger  infralogger.Logger
	metrics *metrics.Metrics
}

// NewClickHandler creates a ClickHandler. m may be nil.
func NewClickHandler(engine *tracker.Engine, log infralogger.Logger, m *metrics.Metrics) *ClickHandler {
	return &ClickHandler{engine: engine, logger: log, metrics: m}
}

// HandleClick accounts one click and returns the domain's standard fields.
func (h *ClickHandler) HandleClick(c *gin.Context) {
	click := parseClick(c)
	if click.IsBot {
		h.metrics.RecordBotFlagged()
	}

	tracked, err := h.engine.AccountClick(c.Request.Context(), click)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, jsonContentType, []byte(codec.SerializeStandardFields(tracked)))
}

func parseClick(c *gin.Context) tracker.Click {
	click := tracker.Click{
		Domain:        c.Query("domain"),
		FirstVisit:    strings.EqualFold(c.Query("firstvisit"), "true"),
		Source:        c.Query("from"),
		RemoteAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		IsBot:         middleware.IsBot(c),
	}
	if ref := c.Request.Referer(); ref != "" {
		click.Referrer = &ref
	}
	return click
}

// MethodNotAllowed answers 405 and advertises the allowed methods.
func MethodNotAllowed(allowed ...string) gin.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(c *gin.Context) {
		c.Header("Allow", allow)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": http.StatusText(http.StatusMethodNotAllowed)})
	}
}
