package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/tracker"
)

// maxConfigBody caps config patch bodies.
const maxConfigBody = 1 << 20

const jsonContentType = "application/json"

// ConfigHandler serves /config/:domain.
type ConfigHandler struct {
	engine  *tracker.Engine
	logger  infralogger.Logger
	metrics *metrics.Metrics
}

// NewConfigHandler creates a ConfigHandler. m may be nil.
func NewConfigHandler(engine *tracker.Engine, log infralogger.Logger, m *metrics.Metrics) *ConfigHandler {
	return &ConfigHandler{engine: engine, logger: log, metrics: m}
}

// Get returns the serialized record.
func (h *ConfigHandler) Get(c *gin.Context) {
	rec, err := h.engine.Get(c.Request.Context(), c.Param("domain"))
	if err != nil {
		h.metrics.RecordConfigOp("get", resultFor(err))
		respondError(c, h.logger, err)
		return
	}

	h.metrics.RecordConfigOp("get", resultOK)
	c.Data(http.StatusOK, jsonContentType, []byte(codec.Serialize(rec, h.engine.Accounting())))
}

// Merge creates the record or merges the body fragment into it.
func (h *ConfigHandler) Merge(c *gin.Context) {
	name := c.Param("domain")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxConfigBody))
	if err != nil {
		h.metrics.RecordConfigOp("merge", resultFor(err))
		respondError(c, h.logger, err)
		return
	}

	if _, err = h.engine.MergeFragment(c.Request.Context(), name, body); err != nil {
		h.metrics.RecordConfigOp("merge", resultFor(err))
		respondError(c, h.logger, err)
		return
	}

	h.metrics.RecordConfigOp("merge", resultOK)
	infralogger.FromContext(c.Request.Context(), h.logger).Info("Domain config merged",
		infralogger.Domain(name),
	)
	c.Status(http.StatusNoContent)
}

// Delete removes the record. Absent records still yield 204.
func (h *ConfigHandler) Delete(c *gin.Context) {
	name := c.Param("domain")
	if err := h.engine.Delete(c.Request.Context(), name); err != nil {
		h.metrics.RecordConfigOp("delete", resultFor(err))
		respondError(c, h.logger, err)
		return
	}

	h.metrics.RecordConfigOp("delete", resultOK)
	infralogger.FromContext(c.Request.Context(), h.logger).Info("Domain config deleted",
		infralogger.Domain(name),
	)
	c.Status(http.StatusNoContent)
}
