package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
)

// maxAssetBody caps uploaded assets.
const maxAssetBody = 10 << 20

// StaticHandler serves /static/*path.
type StaticHandler struct {
	assets storage.AssetStore
	logger infralogger.Logger
}

// NewStaticHandler creates a StaticHandler.
func NewStaticHandler(assets storage.AssetStore, log infralogger.Logger) *StaticHandler {
	return &StaticHandler{assets: assets, logger: log}
}

func assetPath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

// Get returns the stored bytes with the stored content type.
func (h *StaticHandler) Get(c *gin.Context) {
	path := assetPath(c)
	if path == "" {
		respondError(c, h.logger, domain.ErrNotFound)
		return
	}

	asset, err := h.assets.Get(c.Request.Context(), path)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, asset.ServedContentType(), asset.Data)
}

// Put stores the request body verbatim along with its Content-Type header.
func (h *StaticHandler) Put(c *gin.Context) {
	path := assetPath(c)
	if path == "" {
		respondError(c, h.logger, domain.ErrNotFound)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAssetBody))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	asset := &domain.Asset{
		Path:        path,
		Data:        data,
		ContentType: c.GetHeader("Content-Type"),
		UpdatedAt:   time.Now().UTC(),
	}
	if err = h.assets.Put(c.Request.Context(), asset); err != nil {
		respondError(c, h.logger, err)
		return
	}

	infralogger.FromContext(c.Request.Context(), h.logger).Info("Static asset stored",
		infralogger.String("path", path),
		infralogger.Int("size", len(data)),
	)
	c.Status(http.StatusNoContent)
}
