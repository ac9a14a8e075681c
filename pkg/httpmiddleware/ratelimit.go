package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Max is the request budget per window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc groups requests into buckets. Nil means client IP, taking
	// X-Forwarded-For and X-Real-IP into account.
	KeyFunc func(*http.Request) string
}

// bucket tracks one client's counts over the current and previous window.
// The sliding estimate weighs the previous count by how much of that window
// still overlaps the last Window of wall time, which smooths the burst at
// window boundaries a fixed-window counter would allow.
type bucket struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max    int
	window time.Duration
	keyFn  func(*http.Request) string

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = clientIP
	}
	return &limiter{
		max:     cfg.Max,
		window:  cfg.Window,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
	}
}

// take consumes one request from the key's budget. It reports whether the
// request fits, how much budget is left, and when the window resets.
func (l *limiter) take(key string, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{start: now}
		l.buckets[key] = b
	}

	if age := now.Sub(b.start); age >= l.window {
		if age >= 2*l.window {
			b.prev = 0
		} else {
			b.prev = b.curr
		}
		b.curr = 0
		b.start = now.Truncate(l.window)
	}

	weight := 1 - now.Sub(b.start).Seconds()/l.window.Seconds()
	if weight < 0 {
		weight = 0
	}
	estimate := b.prev*weight + b.curr
	resetAt = b.start.Add(l.window)

	if estimate >= float64(l.max) {
		return false, 0, resetAt
	}

	b.curr++
	remaining = int(float64(l.max) - estimate - 1)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, resetAt
}

// evict drops buckets idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.start) >= 2*l.window {
			delete(l.buckets, key)
		}
	}
}

// RateLimit returns a sliding window rate limiting middleware. Overflowing
// requests get 429 with a Retry-After header; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset.
//
// Buckets are never evicted; use RateLimitWithCleanup for long-running
// servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle buckets until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetAt := l.take(l.keyFn(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := math.Ceil(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(retryAfter)))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the originating client address, preferring proxy
// headers over the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in a comma-separated chain.
		if i := strings.IndexByte(xff, ','); i > 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
