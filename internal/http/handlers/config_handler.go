// Response policy endpoints.
//
//   - GET  /api/config/{slug}
//   - POST /api/config/{slug}
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// ConfigRequest is the payload of POST /api/config/{slug}.
//
// Status accepts a number or a numeric string ("201"). Body accepts a
// string, stored verbatim, or any other JSON value, stored as its JSON text.
type ConfigRequest struct {
	Status      json.RawMessage `json:"status" swaggertype:"integer" example:"201"`
	Body        json.RawMessage `json:"body" swaggertype:"string" example:"{\"ok\":true}"`
	ContentType string          `json:"contentType" example:"application/json"`
}

// ConfigResponse acknowledges a saved policy.
type ConfigResponse struct {
	Success bool                  `json:"success" example:"true"`
	Config  domain.ResponseConfig `json:"config"`
}

// toConfig converts the loosely typed request into a ResponseConfig. A
// status that does not parse becomes 0 and fails validation downstream.
func (r ConfigRequest) toConfig() domain.ResponseConfig {
	return domain.ResponseConfig{
		Status:      parseStatus(r.Status),
		Body:        bodyText(r.Body),
		ContentType: strings.TrimSpace(r.ContentType),
	}
}

// parseStatus reads a JSON number or string and keeps its leading integer,
// so "201 Created" is 201.
func parseStatus(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	} else {
		s = string(raw)
	}
	return leadingInt(strings.TrimSpace(s))
}

// leadingInt parses the decimal digits at the start of s, with an optional
// sign. No digits, or more than seven, yield 0.
func leadingInt(s string) int {
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n > 1_000_000 {
			return 0
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// bodyText returns a JSON string's contents, or the raw JSON text of any
// other value. Absent and null bodies are empty.
func bodyText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// GetConfig godoc
// @ID          getConfig
// @Summary     Get the response policy
// @Description Returns the response served to captures of the slug, or the default policy when none is saved.
// @Tags        Config
// @Produce     json
//
// @Param       slug  path  string  true  "Slug"  example(orders-webhook-0101)
//
// @Success     200  {object}  domain.ResponseConfig
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid slug"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/config/{slug} [get]
func (h *Handlers) GetConfig(c *gin.Context) {
	cfg, err := h.svc.Policy.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cfg)
}

// SetConfig godoc
// @ID          setConfig
// @Summary     Save the response policy
// @Description Stores the status, body and content type served to later captures. Captures already
// @Description recorded keep the response they were answered with.
// @Tags        Config
// @Accept      json
// @Produce     json
//
// @Param       slug  path  string                   true  "Slug"  example(orders-webhook-0101)
// @Param       body  body  handlers.ConfigRequest  true  "Response policy"
//
// @Success     200  {object}  handlers.ConfigResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid slug, body or status"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/config/{slug} [post]
func (h *Handlers) SetConfig(c *gin.Context) {
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cfg, err := h.svc.Policy.Set(c.Request.Context(), c.Param("slug"), req.toConfig())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConfigResponse{Success: true, Config: cfg})
}

