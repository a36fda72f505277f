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

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	// Max requests per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client; ClientIP when nil.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from two fixed windows: the
// previous window's count is weighted by how much of it the sliding window
// still covers.
type counter struct {
	start      time.Time
	prev, curr float64
}

type limiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{max: cfg.Max, window: cfg.Window, counters: map[string]*counter{}}
}

// take records a request for key. It reports the remaining budget, the end
// of the current window and whether the request is admitted.
func (l *limiter) take(key string, now time.Time) (int, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	if since := now.Sub(c.start); since >= l.window {
		if since >= 2*l.window {
			c.prev = 0
		} else {
			c.prev = c.curr
		}
		c.curr = 0
		c.start = now.Truncate(l.window)
	}

	weight := max(0, 1-now.Sub(c.start).Seconds()/l.window.Seconds())
	used := c.prev*weight + c.curr
	reset := c.start.Add(l.window)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(0, int(float64(l.max)-used-1)), reset, true
}

func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, k)
		}
	}
}

// RateLimit rejects clients over budget with 429 and reports the budget in
// X-RateLimit-* headers. Idle clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = ClientIP
	}

	go func() {
		t := time.NewTicker(2 * cfg.Window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.evict(now)
			}
		}
	}()

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.take(keyOf(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(0, reset.Sub(now).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
