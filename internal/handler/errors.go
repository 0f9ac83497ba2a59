// Package handler holds the HTTP handlers of the clickcounter API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

// Result labels for config operation metrics.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultInvalid  = "invalid"
	resultError    = "error"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedPatch):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// resultFor maps an error to a metrics result label.
func resultFor(err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return resultNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return resultInvalid
	default:
		return resultError
	}
}

// respondError writes a JSON error body. Server-side failures are logged.
func respondError(c *gin.Context, log infralogger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		infralogger.FromContext(c.Request.Context(), log).Error("Request failed",
			infralogger.String("path", c.Request.URL.Path),
			infralogger.Error(err),
		)
	}

	message := http.StatusText(status)
	if status == http.StatusBadRequest {
		message = err.Error()
	}
	c.JSON(status, gin.H{"error": message})
}
