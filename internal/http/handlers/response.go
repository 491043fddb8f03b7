// Package handlers implements the HTTP endpoints of the callback handler.
//
// This file holds the response helpers shared by every endpoint: the JSON
// error envelope, the mapping from service errors onto status codes, and
// small success writers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/services"
)

// ErrorResponse is the error envelope of the /api endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"slug not found"`
}

// CaptureError is the body of a failed capture call.
type CaptureError struct {
	Error string `json:"error" example:"Slug not found"`
}

// fail aborts with the error envelope. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail, used by the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the envelope. Storage failures and
// anything unrecognized are logged in full and answered with a generic 500.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidSlug):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSlug, err.Error())
	case errors.Is(err, services.ErrInvalidStatusCode):
		fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, err.Error())
	case errors.Is(err, services.ErrInvalidDate):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrSlugNotFound), errors.Is(err, services.ErrSummaryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		logStorage(c, err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// logStorage logs err with its operation and slug when it is a
// *services.StorageError.
func logStorage(c *gin.Context, err error) {
	ev := middleware.LoggerFrom(c).Error().Err(err)
	var se *services.StorageError
	if errors.As(err, &se) {
		ev = ev.Str("op", se.Op).Str("slug", se.Slug)
	}
	ev.Msg("request failed")
}

// ok writes body as JSON with status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
