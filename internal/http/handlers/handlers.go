// Handler wiring.
//
// Handlers depend on narrow, context-aware service contracts so transport
// concerns stay separate from the capture core; tests substitute fakes.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/notify"
	"github.com/tbourn/go-callback-handler/internal/services"
)

//
// Service contracts (context-aware)
//

// Ingestor runs the capture and viewer flows of /record/{slug}.
type Ingestor interface {
	Capture(ctx context.Context, in services.CaptureInput) (*services.CaptureResult, error)
	View(ctx context.Context, in services.ViewInput) (*services.ViewResult, error)
}

// Registry normalizes slugs and gates the viewer data endpoints.
type Registry interface {
	Normalize(input string) (string, error)
	Authorize(ctx context.Context, slug string, caller *domain.Identity, hasMarker bool) error
	ListSlugs(ctx context.Context, id domain.Identity) ([]string, error)
}

// PolicyStore reads and writes the per-slug response policy.
type PolicyStore interface {
	Get(ctx context.Context, slug string) (domain.ResponseConfig, error)
	Set(ctx context.Context, slug string, cfg domain.ResponseConfig) (domain.ResponseConfig, error)
}

// Ledger reads captured requests.
type Ledger interface {
	Recent(ctx context.Context, slug string, limit int) ([]domain.CaptureRecord, error)
	Export(ctx context.Context, slug string, f services.ExportFilter) ([]domain.CaptureRecord, error)
}

// Aggregator produces and serves daily usage summaries.
type Aggregator interface {
	Yesterday() string
	GenerateDailySummary(ctx context.Context, date string) (*domain.DailySummary, error)
	Summary(ctx context.Context, date string) (*domain.DailySummary, error)
	History(ctx context.Context, limit int) ([]domain.DailySummary, error)
}

// LiveFeed hands out per-slug capture event streams.
type LiveFeed interface {
	Subscribe(slug string) *notify.Subscription
	Unsubscribe(sub *notify.Subscription)
}

// Services bundles the dependencies of Handlers. Live may be nil, which
// disables the stream and websocket endpoints.
type Services struct {
	Ingest   Ingestor
	Registry Registry
	Policy   PolicyStore
	Ledger   Ledger
	Stats    Aggregator
	Live     LiveFeed
}

// Options carries the transport settings of Handlers.
type Options struct {
	// ViewLimit is the size of the viewer data read.
	ViewLimit int
	// Author and RepoURL are echoed on capture responses when set.
	Author  string
	RepoURL string
	// PublicURL is the external base URL used to build capture links; the
	// request host is used when empty.
	PublicURL string
	// CreatorCookieTTL is the lifetime of the creation marker cookie.
	CreatorCookieTTL time.Duration
	// CronSecret gates the cron endpoint when set.
	CronSecret string
	// KeepAlive is the ping interval of live streams.
	KeepAlive time.Duration
}

// Handlers groups every HTTP endpoint of the service.
type Handlers struct {
	svc  Services
	opts Options
}

// New constructs Handlers, filling zero options with defaults.
func New(svc Services, opts Options) *Handlers {
	if opts.ViewLimit <= 0 {
		opts.ViewLimit = services.DefaultViewLimit
	}
	if opts.CreatorCookieTTL <= 0 {
		opts.CreatorCookieTTL = 24 * time.Hour
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Handlers{svc: svc, opts: opts}
}

//
// Helpers
//

// creatorCookiePrefix names the per-slug creation marker.
const creatorCookiePrefix = "slug_creator_"

// setCreatorMarker proves to later requests from this browser that it
// created slug.
func (h *Handlers) setCreatorMarker(c *gin.Context, slug string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(creatorCookiePrefix+slug, "1", int(h.opts.CreatorCookieTTL.Seconds()), "/", "", false, false)
}

// hasCreatorMarker reports whether the request carries slug's marker.
func hasCreatorMarker(c *gin.Context, slug string) bool {
	v, err := c.Cookie(creatorCookiePrefix + slug)
	return err == nil && v == "1"
}

// baseURL is the external origin used in links handed back to clients.
func (h *Handlers) baseURL(c *gin.Context) string {
	if h.opts.PublicURL != "" {
		return h.opts.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + requestHost(c)
}

// requestHost is the Host the caller addressed.
func requestHost(c *gin.Context) string {
	if c.Request.Host != "" {
		return c.Request.Host
	}
	return "localhost"
}

// authorizeViewer gates a per-slug data endpoint. It writes the error
// response and returns false when the caller may not read slug.
func (h *Handlers) authorizeViewer(c *gin.Context, slug string) bool {
	if !domain.ValidSlug(slug) {
		failErr(c, services.ErrInvalidSlug)
		return false
	}
	err := h.svc.Registry.Authorize(c.Request.Context(), slug, middleware.IdentityFrom(c), hasCreatorMarker(c, slug))
	if err != nil {
		failErr(c, err)
		return false
	}
	return true
}
