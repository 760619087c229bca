package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// RateLimit returns middleware admitting at most limit requests per window
// for each client address. A denied request gets 429 without reaching the
// handler; limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(context.Background(), "api:"+clientAddr(r), limit, window)
			if err == nil && !allowed {
				h := w.Header()
				h.Set("Content-Type", "application/json; charset=utf-8")
				h.Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr resolves the client address, preferring proxy headers over the
// socket peer.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
