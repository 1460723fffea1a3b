package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// windowCounter counts hits for key in the current fixed window and reports
// how long until that window resets.
type windowCounter interface {
	hit(ctx context.Context, key string) (count int64, resetIn time.Duration, err error)
}

// limitMiddleware enforces limit per client key. Every response carries the
// X-RateLimit-* headers; rejected ones also get Retry-After.
func limitMiddleware(counter windowCounter, limit int, prefix string, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if prefix != "" {
				key = prefix + ":" + key
			}
			count, resetIn, err := counter.hit(r.Context(), key)
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, ErrorBody{Code: "INTERNAL_ERROR", Message: "rate limiter unavailable"})
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if count > int64(limit) {
				retry := int(math.Ceil(resetIn.Seconds()))
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(retry))
				WriteError(w, http.StatusTooManyRequests, ErrorBody{
					Code:    "RATE_LIMITED",
					Message: "rate limit exceeded",
					Details: map[string]any{"retry_after_seconds": retry},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter is a per-process fixed-window limiter keyed by client IP. It
// is the fallback when no Redis is configured.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count   int64
	resetAt time.Time
}

const maxTrackedVisitors = 10000

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return limitMiddleware(rl, rl.limit, "", nil, true)
}

func (rl *RateLimiter) hit(_ context.Context, key string) (int64, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.visitors) > maxTrackedVisitors {
		for k, v := range rl.visitors {
			if !now.Before(v.resetAt) {
				delete(rl.visitors, k)
			}
		}
	}
	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetAt) {
		v = &visitor{resetAt: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	// Rejected hits are not counted, so a blocked client cannot extend its
	// own lockout.
	if v.count < int64(rl.limit) {
		v.count++
		return v.count, v.resetAt.Sub(now), nil
	}
	return v.count + 1, v.resetAt.Sub(now), nil
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
