// Capture and viewer endpoints.
//
//   - ANY /record/{slug}              (capture, or viewer load)
//   - GET /api/record/{slug}          (recent captures, owner or creator only)
//   - GET /api/record/{slug}/export   (filtered ledger download)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/services"
)

// Capture response headers.
const (
	HeaderRecordID = "X-Record-ID"
	HeaderAuthor   = "X-Author"
	HeaderRepoURL  = "X-Repo-URL"
)

// Record godoc
// @ID          record
// @Summary     Capture a request (or load the viewer)
// @Description Any call is recorded against the slug and answered with the slug's response policy.
// @Description A GET accepting text/html, or a call carrying X-Viewer-Fetch, is a viewer load instead:
// @Description it activates the slug and returns the most recent captures.
// @Description Warning: the viewer load is not gated by the creation marker or an owner identity;
// @Description anyone who knows the slug can read its recent captures here. /api/record/{slug} is the gated read.
// @Description 1xx policies are answered as 200, and 204, 304 and HEAD replies carry no body; the stored record matches what was sent.
// @Tags        Capture
// @Accept      */*
// @Produce     json
//
// @Param       slug            path    string  true   "Slug"  example(orders-webhook-0101)
// @Param       X-Viewer-Fetch  header  string  false  "Marks a viewer data fetch"
//
// @Success     200  {object}  services.ViewResult  "Viewer load; capture calls answer with the configured response"
// @Header      200  {string}  X-Record-ID  "Id of the stored capture"
// @Failure     404  {object}  handlers.CaptureError  "Slug never activated"
// @Failure     500  {object}  handlers.CaptureError  "Capture could not be stored"
// @Router      /record/{slug} [get]
// @Router      /record/{slug} [post]
// @Router      /record/{slug} [put]
// @Router      /record/{slug} [patch]
// @Router      /record/{slug} [delete]
func (h *Handlers) Record(c *gin.Context) {
	slug := c.Param("slug")
	if services.Classify(c.Request.Method, c.Request.Header) == services.ClassViewer {
		h.view(c, slug)
		return
	}

	res, err := h.svc.Ingest.Capture(c.Request.Context(), services.CaptureInput{
		Slug:       slug,
		Method:     c.Request.Method,
		Host:       c.Request.Host,
		Header:     c.Request.Header,
		Query:      c.Request.URL.Query(),
		Body:       c.Request.Body,
		RemoteAddr: c.Request.RemoteAddr,
	})
	switch {
	case errors.Is(err, services.ErrSlugNotFound):
		middleware.ObserveCapture(middleware.CaptureNotFound)
		c.AbortWithStatusJSON(http.StatusNotFound, CaptureError{Error: "Slug not found"})
		return
	case err != nil:
		middleware.ObserveCapture(middleware.CaptureFailed)
		logStorage(c, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, CaptureError{Error: "Failed to record request"})
		return
	}
	middleware.ObserveCapture(middleware.CaptureStored)

	if h.opts.Author != "" {
		c.Header(HeaderAuthor, h.opts.Author)
	}
	if h.opts.RepoURL != "" {
		c.Header(HeaderRepoURL, h.opts.RepoURL)
	}
	c.Header(HeaderRecordID, res.Record.ID)

	// Answer with the snapshot stamped on the stored record.
	c.Data(res.Response.Status, res.Response.ContentType, []byte(res.Response.Body))
}

// view serves a viewer load of /record/{slug}.
func (h *Handlers) view(c *gin.Context, slug string) {
	res, err := h.svc.Ingest.View(c.Request.Context(), services.ViewInput{
		Slug:     slug,
		Host:     requestHost(c),
		Identity: middleware.IdentityFrom(c),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveCapture(middleware.CaptureViewer)
	if res.Activated {
		h.setCreatorMarker(c, slug)
	}
	ok(c, http.StatusOK, res)
}

// Requests godoc
// @ID          listRequests
// @Summary     Recent captures of a slug
// @Description Returns the most recent captures, newest first. Only the bound owner, or a browser holding
// @Description the slug's creation marker cookie, may read them.
// @Tags        Viewer
// @Produce     json
//
// @Param       slug           path    string  true   "Slug"  example(orders-webhook-0101)
// @Param       Authorization  header  string  false  "Bearer session token"
//
// @Success     200  {array}   domain.CaptureRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid slug"
// @Failure     401  {object}  handlers.ErrorResponse  "No identity and no creation marker"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/record/{slug} [get]
func (h *Handlers) Requests(c *gin.Context) {
	slug := c.Param("slug")
	if !h.authorizeViewer(c, slug) {
		return
	}
	recs, err := h.svc.Ledger.Recent(c.Request.Context(), slug, h.opts.ViewLimit)
	if err != nil {
		failErr(c, err)
		return
	}
	if recs == nil {
		recs = []domain.CaptureRecord{}
	}
	ok(c, http.StatusOK, recs)
}

// Export godoc
// @ID          exportRequests
// @Summary     Export captures
// @Description Downloads the whole ledger of a slug filtered by method and UTC day, in ledger order.
// @Tags        Viewer
// @Produce     json
//
// @Param       slug    path   string  true   "Slug"                 example(orders-webhook-0101)
// @Param       method  query  string  false  "HTTP method filter"   example(POST)
// @Param       date    query  string  false  "UTC day (YYYY-MM-DD)" example(2024-01-01)
//
// @Success     200  {array}   domain.CaptureRecord
// @Header      200  {string}  Content-Disposition  "attachment; filename=<slug>-requests.json"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid slug or date"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/record/{slug}/export [get]
func (h *Handlers) Export(c *gin.Context) {
	slug := c.Param("slug")
	f, err := services.ParseExportFilter(c.Query("method"), c.Query("date"))
	if err != nil {
		failErr(c, err)
		return
	}
	if !h.authorizeViewer(c, slug) {
		return
	}
	recs, err := h.svc.Ledger.Export(c.Request.Context(), slug, f)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+slug+`-requests.json"`)
	ok(c, http.StatusOK, recs)
}
