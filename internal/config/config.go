// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, Redis and archive locations, the capture ledger and TTL policy,
// session handling, background workers, rate limiting and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "callback-handler")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CaptureConfig governs the capture ledger and per-slug key lifetime.
type CaptureConfig struct {
	RecordTTL        time.Duration // RECORD_TTL, applied to every per-slug key
	MaxRecords       int           // MAX_RECORDS kept per slug
	ViewLimit        int           // VIEW_LIMIT records returned to viewers
	MaxBodyBytes     int64         // MAX_CAPTURE_BYTES kept per body
	Author           string        // AUTHOR, echoed as X-Author when set
	RepoURL          string        // REPO_URL, echoed as X-Repo-URL when set
	PublicURL        string        // PUBLIC_URL used to build capture links
	CreatorCookieTTL time.Duration // CREATOR_COOKIE_TTL for the creation marker
}

// StatsConfig governs the usage aggregator.
type StatsConfig struct {
	Retention time.Duration // STATS_RETENTION for rolled-up counters
	TopN      int           // SUMMARY_TOP_N
	Scheduler bool          // SUMMARY_SCHEDULER runs the rollup in-process
}

// AuthConfig governs session identity and the cron gate.
type AuthConfig struct {
	Secret        string // AUTH_SECRET; empty disables session identities
	SessionCookie string // SESSION_COOKIE
	CronSecret    string // CRON_SECRET; empty leaves the cron endpoint open
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	ShutdownTimeout   time.Duration // grace period for in-flight work

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// Storage
	RedisURL string // REDIS_URL
	DBPath   string // SQLite summary archive path

	Capture CaptureConfig
	Stats   StatsConfig
	Auth    AuthConfig

	// Background side effects
	Workers     int // WORKERS
	WorkerQueue int // WORKER_QUEUE

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Storage
		RedisURL: getenv("REDIS_URL", "redis://localhost:6379/0"),
		DBPath:   getenv("DB_PATH", "summaries.db"),

		Capture: CaptureConfig{
			RecordTTL:        getdur("RECORD_TTL", 30*24*time.Hour),
			MaxRecords:       getint("MAX_RECORDS", 100),
			ViewLimit:        getint("VIEW_LIMIT", 50),
			MaxBodyBytes:     int64(getint("MAX_CAPTURE_BYTES", 1<<20)),
			Author:           getenv("AUTHOR", ""),
			RepoURL:          getenv("REPO_URL", ""),
			PublicURL:        normalizeBaseURL(getenv("PUBLIC_URL", "")),
			CreatorCookieTTL: getdur("CREATOR_COOKIE_TTL", 24*time.Hour),
		},
		Stats: StatsConfig{
			Retention: getdur("STATS_RETENTION", 7*24*time.Hour),
			TopN:      getint("SUMMARY_TOP_N", 5),
			Scheduler: getbool("SUMMARY_SCHEDULER", false),
		},
		Auth: AuthConfig{
			Secret:        getenv("AUTH_SECRET", ""),
			SessionCookie: getenv("SESSION_COOKIE", "session_token"),
			CronSecret:    getenv("CRON_SECRET", ""),
		},

		Workers:     getint("WORKERS", 4),
		WorkerQueue: getint("WORKER_QUEUE", 256),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "callback-handler"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
		return cfg, errors.New("REDIS_URL must start with redis:// or rediss://")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Capture.RecordTTL < 0 {
		return cfg, errors.New("RECORD_TTL must be >= 0")
	}
	if cfg.Capture.MaxRecords < 1 {
		return cfg, errors.New("MAX_RECORDS must be >= 1")
	}
	if cfg.Capture.ViewLimit < 1 || cfg.Capture.ViewLimit > cfg.Capture.MaxRecords {
		return cfg, errors.New("VIEW_LIMIT must be between 1 and MAX_RECORDS")
	}
	if cfg.Capture.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_CAPTURE_BYTES must be > 0")
	}
	if cfg.Capture.CreatorCookieTTL <= 0 {
		return cfg, errors.New("CREATOR_COOKIE_TTL must be > 0")
	}
	if cfg.Stats.Retention <= 0 {
		return cfg, errors.New("STATS_RETENTION must be > 0")
	}
	if cfg.Stats.TopN < 1 {
		return cfg, errors.New("SUMMARY_TOP_N must be >= 1")
	}
	if strings.TrimSpace(cfg.Auth.SessionCookie) == "" {
		return cfg, errors.New("SESSION_COOKIE must not be empty")
	}
	if cfg.Workers < 0 {
		return cfg, errors.New("WORKERS must be >= 0")
	}
	if cfg.WorkerQueue < 1 {
		return cfg, errors.New("WORKER_QUEUE must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBaseURL trims whitespace and trailing slashes; empty stays empty
// and means "derive from the request host".
func normalizeBaseURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
