// Per-caller token buckets built on golang.org/x/time/rate.
//
// The limiter is process-local; each replica enforces its own budget. It
// protects the shared Redis from a single noisy sender and is not an
// authorization mechanism.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by identity ("user:<key>", set by
// Authenticate) and everybody else by client IP ("ip:<addr>").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(userIDKey); ok {
			if s := asString(v); s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Buckets idle for longer than
// ttl are evicted every sweepEvery lookups. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	// skip lists path prefixes that are never limited.
	skip []string

	mu         sync.Mutex
	visitors   map[string]*visitor
	ttl        time.Duration
	sweepEvery uint64
	lookups    uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). Requests whose path starts with one of
// skipPrefixes bypass it.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc, skipPrefixes ...string) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		skip:       skipPrefixes,
		visitors:   make(map[string]*visitor),
		ttl:        10 * time.Minute,
		sweepEvery: 5000,
	}
}

// getVisitor returns the bucket for key. The sweep runs before the lookup
// so that a stale bucket is dropped even when it is the one requested.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) skipped(path string) bool {
	for _, p := range rl.skip {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler answers 429 with Retry-After: 1 once the caller's bucket is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.skipped(c.Request.URL.Path) || rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
