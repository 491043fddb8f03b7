// Package httpapi wires the HTTP transport (gin) to the capture services,
// middleware and handlers. It centralizes the cross-cutting concerns:
// tracing, correlation ids, redacted access logs, panic recovery, metrics,
// session identity, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-callback-handler/internal/auth"
	"github.com/tbourn/go-callback-handler/internal/config"
	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/http/handlers"
	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/notify"
	"github.com/tbourn/go-callback-handler/internal/repo"
	"github.com/tbourn/go-callback-handler/internal/services"
)

// registryRepoShim adapts the repo free functions to services.RegistryRepo,
// keeping the services decoupled from the concrete repo package.
type registryRepoShim struct{}

// IsActive proxies repo.IsActive.
func (registryRepoShim) IsActive(ctx context.Context, rdb redis.Cmdable, slug string) (bool, error) {
	return repo.IsActive(ctx, rdb, slug)
}

// MarkActive proxies repo.MarkActive.
func (registryRepoShim) MarkActive(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) (bool, error) {
	return repo.MarkActive(ctx, rdb, slug, ttl)
}

// RefreshSlugTTL proxies repo.RefreshSlugTTL.
func (registryRepoShim) RefreshSlugTTL(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) error {
	return repo.RefreshSlugTTL(ctx, rdb, slug, ttl)
}

// GetOwner proxies repo.GetOwner.
func (registryRepoShim) GetOwner(ctx context.Context, rdb redis.Cmdable, slug string) (*domain.Identity, error) {
	return repo.GetOwner(ctx, rdb, slug)
}

// SetOwnerIfAbsent proxies repo.SetOwnerIfAbsent.
func (registryRepoShim) SetOwnerIfAbsent(ctx context.Context, rdb redis.Cmdable, slug string, owner domain.Identity, ttl time.Duration) (bool, error) {
	return repo.SetOwnerIfAbsent(ctx, rdb, slug, owner, ttl)
}

// AddUserSlug proxies repo.AddUserSlug.
func (registryRepoShim) AddUserSlug(ctx context.Context, rdb redis.Cmdable, identity, slug string) error {
	return repo.AddUserSlug(ctx, rdb, identity, slug)
}

// ListUserSlugs proxies repo.ListUserSlugs.
func (registryRepoShim) ListUserSlugs(ctx context.Context, rdb redis.Cmdable, identity string) ([]string, error) {
	return repo.ListUserSlugs(ctx, rdb, identity)
}

// Deps are the process-level handles the HTTP layer is built from.
type Deps struct {
	RDB redis.UniversalClient
	// DB is the summary archive; nil disables archiving and history.
	DB *gorm.DB
	// Tasks runs capture side effects; nil drops them.
	Tasks services.TaskRunner
	// Hub relays live capture events; nil disables the live endpoints.
	Hub *notify.Hub
	Log zerolog.Logger
}

// Core bundles the capture services.
type Core struct {
	Registry *services.RegistryService
	Policy   *services.PolicyService
	Ledger   *services.LedgerService
	Stats    *services.StatsService
	Ingest   *services.IngestService
}

// NewCore builds the capture services over d using the limits in cfg.
func NewCore(d Deps, cfg config.Config) *Core {
	ttl := cfg.Capture.RecordTTL
	core := &Core{
		Registry: services.NewRegistryService(d.RDB, registryRepoShim{}, ttl),
		Policy:   &services.PolicyService{RDB: d.RDB, TTL: ttl},
		Ledger: &services.LedgerService{
			RDB:       d.RDB,
			Max:       cfg.Capture.MaxRecords,
			ViewLimit: cfg.Capture.ViewLimit,
			TTL:       ttl,
		},
		Stats: &services.StatsService{
			RDB:       d.RDB,
			DB:        d.DB,
			TopN:      cfg.Stats.TopN,
			Retention: cfg.Stats.Retention,
		},
	}
	core.Ingest = &services.IngestService{
		Registry:     core.Registry,
		Policy:       core.Policy,
		Ledger:       core.Ledger,
		Stats:        core.Stats,
		Publisher:    &notify.Publisher{RDB: d.RDB},
		Tasks:        d.Tasks,
		MaxBodyBytes: cfg.Capture.MaxBodyBytes,
		Log:          d.Log,
	}
	return core
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: request-scoped logger + scrubbed access log
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Authenticate: resolve the session identity
//  7. Rate limiter (per identity/IP)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, core *Core, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key", "X-Hub-Signature", "X-Hub-Signature-256", "Stripe-Signature"},
	}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Authenticate(auth.NewVerifier(cfg.Auth.Secret), cfg.Auth.SessionCookie))

	// Capture traffic is exempt. The API and the viewer socket share the budget.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(), "/health", "/metrics", "/swagger", "/record/")
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", services.ViewerFetchHeader}
	exposeHeaders := []string{"X-Request-ID", handlers.HeaderRecordID, "Content-Length"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true, // creation marker and session cookies
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.RDB))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := handlers.Services{
		Ingest:   core.Ingest,
		Registry: core.Registry,
		Policy:   core.Policy,
		Ledger:   core.Ledger,
		Stats:    core.Stats,
	}
	if d.Hub != nil {
		svc.Live = d.Hub
	}
	h := handlers.New(svc, handlers.Options{
		ViewLimit:        cfg.Capture.ViewLimit,
		Author:           cfg.Capture.Author,
		RepoURL:          cfg.Capture.RepoURL,
		PublicURL:        cfg.Capture.PublicURL,
		CreatorCookieTTL: cfg.Capture.CreatorCookieTTL,
		CronSecret:       cfg.Auth.CronSecret,
	})

	// Capture endpoint: any method, any body.
	r.Any("/record/:slug", h.Record)

	r.GET("/ws/record/:slug", h.Socket)

	api := r.Group("/api")
	api.Use(
		limitBody(1<<20),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/stream$`})),
		middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}),
	)
	{
		api.GET("/record/:slug", h.Requests)
		api.GET("/record/:slug/export", h.Export)
		api.GET("/record/:slug/stream", h.Stream)

		api.GET("/config/:slug", h.GetConfig)
		api.POST("/config/:slug", h.SetConfig)

		api.POST("/slugs", h.CreateSlug)
		api.GET("/slugs", h.ListSlugs)

		api.GET("/cron/:job", h.Cron)
		api.GET("/stats/summary/:date", h.Summary)
		api.GET("/stats/summaries", h.Summaries)
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Redis  string `json:"redis" example:"up"`
}

// health reports liveness and Redis reachability. A failed ping answers 503.
func health(rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if rdb == nil || rdb.Ping(ctx).Err() != nil {
			c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Redis: "down"})
			return
		}
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Redis: "up"})
	}
}

// limitBody caps request bodies at maxBytes with http.MaxBytesReader; reads
// past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
