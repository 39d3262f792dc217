// ratelimit.go enforces per-client request budgets. The in-process token bucket serves a
// single replica; RedisLimiter shares the budget across replicas.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/safego"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// RateLimitResult is the outcome of one Allow call
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
	Limit() int
	Close() error
}

// NewLimiter builds the limiter selected by cfg and names its backend for metrics
func NewLimiter(cfg config.RateLimitingConfig) (Limiter, string, error) {
	if cfg.RedisURL != "" {
		l, err := NewRedisLimiter(cfg.RedisURL, cfg.RequestsPerMinute, cfg.Burst)
		if err != nil {
			return nil, "", err
		}
		return l, "redis", nil
	}
	return NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst, 5*time.Minute), "memory", nil
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key, refilled at RequestsPerMinute and capped at burst
type MemoryLimiter struct {
	perMinute int
	burst     int
	idleTTL   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryLimiter creates a limiter and starts evicting idle buckets every sweep interval
func NewMemoryLimiter(perMinute, burst int, sweep time.Duration) *MemoryLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	l := &MemoryLimiter{
		perMinute: perMinute,
		burst:     burst,
		idleTTL:   10 * time.Minute,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	if sweep > 0 {
		safego.Go("rate-limit-sweeper", func() { l.sweepLoop(sweep) })
	}
	return l
}

func (l *MemoryLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// Allow takes one token from key's bucket. A denied request does not consume a token.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return RateLimitResult{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return RateLimitResult{Allowed: false, RetryAfter: delay}, nil
	}
	return RateLimitResult{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}, nil
}

// Limit returns the configured requests per minute
func (l *MemoryLimiter) Limit() int {
	return l.perMinute
}

// Close stops the sweeper
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}

// RateLimitMiddleware rejects clients that exhausted their budget with 429. Limiter errors
// fail open so a Redis outage does not take the API down.
func RateLimitMiddleware(limiter Limiter, backend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request",
				"backend", backend, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			telemetry.RateLimitRejectionsTotal.WithLabelValues(backend).Inc()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated user and falls back to the client IP
func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
