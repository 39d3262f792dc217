package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// newTestLimiter returns a limiter with a controllable clock and no sweeper
func newTestLimiter(rpm, burst int) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter(rpm, burst, 0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

// ---------------------------------------------------------------------------
// MemoryLimiter
// ---------------------------------------------------------------------------

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(60, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "k")
		if err != nil || !res.Allowed {
			t.Fatalf("request %d denied: %+v %v", i, res, err)
		}
		if res.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 2-i)
		}
	}

	res, _ := l.Allow(ctx, "k")
	if res.Allowed {
		t.Error("4th request allowed, want denied")
	}
	if res.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s at 60 rpm", res.RetryAfter)
	}
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l, now := newTestLimiter(60, 1)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first request denied")
	}
	if res, _ := l.Allow(ctx, "k"); res.Allowed {
		t.Fatal("second request allowed without refill")
	}
	*now = now.Add(time.Second)
	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Error("request after refill denied")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(60, 1)
	ctx := context.Background()
	l.Allow(ctx, "a")
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Error("key b throttled by key a")
	}
}

func TestMemoryLimiter_DefaultBurst(t *testing.T) {
	l := NewMemoryLimiter(5, 0, 0)
	if l.burst != 5 {
		t.Errorf("burst = %d, want rpm when unset", l.burst)
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, now := newTestLimiter(60, 5)
	l.Allow(context.Background(), "idle")
	*now = now.Add(11 * time.Minute)
	l.sweep()
	if len(l.buckets) != 0 {
		t.Errorf("idle bucket not evicted, %d left", len(l.buckets))
	}
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	l := NewMemoryLimiter(60, 5, time.Hour)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewLimiter(t *testing.T) {
	l, backend, err := NewLimiter(config.RateLimitingConfig{RequestsPerMinute: 10, Burst: 2})
	if err != nil || backend != "memory" {
		t.Fatalf("NewLimiter() = %v, %q, %v", l, backend, err)
	}
	l.Close()

	if _, _, err := NewLimiter(config.RateLimitingConfig{RequestsPerMinute: 10, RedisURL: "://bad"}); err == nil {
		t.Error("NewLimiter() accepted malformed redis url")
	}

	l, backend, err = NewLimiter(config.RateLimitingConfig{RequestsPerMinute: 10, RedisURL: "redis://127.0.0.1:1/0"})
	if err != nil || backend != "redis" {
		t.Fatalf("NewLimiter(redis) = %v, %q, %v", l, backend, err)
	}
	l.Close()
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (RateLimitResult, error) {
	return RateLimitResult{}, errors.New("connection refused")
}
func (failingLimiter) Limit() int   { return 1 }
func (failingLimiter) Close() error { return nil }

func newRateLimitedRouter(l Limiter, backend string) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(l, backend))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	l, _ := newTestLimiter(60, 2)
	r := newRateLimitedRouter(l, "memory")
	before := counterValue(t, telemetry.RateLimitRejectionsTotal, "memory")

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", last.Header().Get("Retry-After"))
	}
	if last.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", last.Header().Get("X-RateLimit-Limit"))
	}
	if got := counterValue(t, telemetry.RateLimitRejectionsTotal, "memory") - before; got != 1 {
		t.Errorf("rejection counter delta = %v, want 1", got)
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	w := httptest.NewRecorder()
	newRateLimitedRouter(failingLimiter{}, "redis").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter errors", w.Code)
	}
}

func TestRedisLimiter_UnreachableFailsOpen(t *testing.T) {
	l, err := NewRedisLimiter("redis://127.0.0.1:1/0", 60, 5)
	if err != nil {
		t.Fatalf("NewRedisLimiter() error: %v", err)
	}
	defer l.Close()
	if l.Limit() != 60 {
		t.Errorf("Limit() = %d, want 60", l.Limit())
	}
	if l.limit.Burst != 5 {
		t.Errorf("Burst = %d, want 5", l.limit.Burst)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := l.Allow(ctx, "k"); err == nil {
		t.Error("Allow() against closed port returned nil error")
	}

	w := httptest.NewRecorder()
	newRateLimitedRouter(l, "redis").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.9:5555"
	if got := rateLimitKey(c); got != "ip:10.0.0.9" {
		t.Errorf("rateLimitKey() = %q", got)
	}
	c.Set(UserIDKey, "u-1")
	if got := rateLimitKey(c); got != "user:u-1" {
		t.Errorf("rateLimitKey() = %q", got)
	}
}
