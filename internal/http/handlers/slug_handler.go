// Slug endpoints.
//
//   - POST /api/slugs   (mint a slug from a title)
//   - GET  /api/slugs   (slugs owned by the caller)
package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/services"
)

// CreateSlugRequest is the payload of POST /api/slugs.
type CreateSlugRequest struct {
	// Title is free text; it is normalized and suffixed with the UTC date.
	Title string `json:"title" binding:"required" example:"Orders Webhook"`
}

// CreateSlugResponse returns the minted slug and its links.
type CreateSlugResponse struct {
	Slug       string `json:"slug" example:"orders-webhook-0101"`
	CaptureURL string `json:"captureUrl" example:"https://hooks.example.com/record/orders-webhook-0101"`
	ViewURL    string `json:"viewUrl" example:"https://hooks.example.com/api/record/orders-webhook-0101"`
}

// ListSlugsResponse lists the caller's slugs.
type ListSlugsResponse struct {
	Slugs []string `json:"slugs"`
}

// CreateSlug godoc
// @ID          createSlug
// @Summary     Mint a slug
// @Description Normalizes the title into a dated slug and sets the creation marker cookie that lets this
// @Description browser read the slug's captures. The slug becomes active on its first viewer load.
// @Tags        Slugs
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateSlugRequest  true  "Title"
//
// @Success     201  {object}  handlers.CreateSlugResponse
// @Header      201  {string}  Set-Cookie  "slug_creator_<slug>=1"
// @Failure     400  {object}  handlers.ErrorResponse  "Title normalizes to nothing"
// @Router      /api/slugs [post]
func (h *Handlers) CreateSlug(c *gin.Context) {
	var req CreateSlugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required")
		return
	}
	slug, err := h.svc.Registry.Normalize(req.Title)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setCreatorMarker(c, slug)

	base := h.baseURL(c)
	esc := url.PathEscape(slug)
	ok(c, http.StatusCreated, CreateSlugResponse{
		Slug:       slug,
		CaptureURL: base + "/record/" + esc,
		ViewURL:    base + "/api/record/" + esc,
	})
}

// ListSlugs godoc
// @ID          listSlugs
// @Summary     List my slugs
// @Description Returns the slugs bound to the authenticated caller, sorted.
// @Tags        Slugs
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer session token"
//
// @Success     200  {object}  handlers.ListSlugsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/slugs [get]
func (h *Handlers) ListSlugs(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if id == nil {
		failErr(c, services.ErrUnauthorized)
		return
	}
	slugs, err := h.svc.Registry.ListSlugs(c.Request.Context(), *id)
	if err != nil {
		failErr(c, err)
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	ok(c, http.StatusOK, ListSlugsResponse{Slugs: slugs})
}
