package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimiter is a sliding-window limiter over Redis sorted sets: each
// request adds a member scored by its arrival time and members older than
// the window are trimmed before counting.
type RateLimiter struct {
	client  redis.Cmdable
	limit   int
	window  time.Duration
	prefix  string
	keyFunc KeyFunc
}

// NewRateLimiter allows maxReqs requests per client IP every windowSec seconds.
func NewRateLimiter(client redis.Cmdable, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		client:  client,
		limit:   maxReqs,
		window:  time.Duration(windowSec) * time.Second,
		prefix:  "ratelimit:ip:",
		keyFunc: clientIP,
	}
}

// WithKey returns a copy of rl that counts requests per fn(r) under prefix.
func (rl *RateLimiter) WithKey(prefix string, fn KeyFunc) *RateLimiter {
	cp := *rl
	cp.prefix = prefix
	cp.keyFunc = fn
	return &cp
}

// Middleware rejects requests over the limit with 429. Redis failures let
// the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rl.keyFunc(r)

		ok, err := rl.allow(r.Context(), rl.prefix+id, time.Now())
		switch {
		case err != nil:
			slog.Warn("rate limiter unavailable, allowing request", "error", err, "key", id)
		case !ok:
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string, now time.Time) (bool, error) {
	cutoff := now.Add(-rl.window).UnixMilli()

	var count *redis.IntCmd
	_, err := rl.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
		pipe.Expire(ctx, key, rl.window+time.Second)
		return nil
	})
	if err != nil {
		return false, err
	}
	return count.Val() < int64(rl.limit), nil
}

// clientIP prefers proxy headers, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
