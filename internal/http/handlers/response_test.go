package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/services"
)

func TestFailErr_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
		want string
	}{
		{services.ErrInvalidSlug, http.StatusBadRequest, ErrCodeInvalidSlug},
		{services.ErrInvalidStatusCode, http.StatusBadRequest, ErrCodeInvalidStatus},
		{services.ErrInvalidDate, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrSlugNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("wrapped: %w", services.ErrSummaryNotFound), http.StatusNotFound, ErrCodeNotFound},
		{&services.StorageError{Op: "append_capture", Slug: "s", Err: errors.New("boom")}, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Writer.Header().Set("X-Request-ID", "rid-1")

		failErr(c, tc.err)

		if w.Code != tc.code {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.code)
		}
		var body ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != tc.want || body.RequestID != "rid-1" {
			t.Errorf("%v: body = %+v", tc.err, body)
		}
		if tc.code == http.StatusInternalServerError && body.Message != "internal server error" {
			t.Errorf("storage details leaked: %q", body.Message)
		}
	}
}
