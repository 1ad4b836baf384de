package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/deepgram/wayfinder/pkg/ratelimit"
)

// RateLimit throttles each client address under the named limit. Disabled
// limits pass every request through.
func RateLimit(limitKey string) func(http.Handler) http.Handler {
	cfg := config.GetRateLimitConfig(limitKey)
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)
	retryAfter := strconv.Itoa(int(cfg.Window.Seconds()))
	l := logger.For(logger.MIDDLEWARE)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddress(r)
			if !limiter.Allow(client) {
				l.Warn().Str("client", client).Str("limit", limitKey).Str("path", r.URL.Path).Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter)
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress prefers the first X-Forwarded-For hop and falls back to the
// remote host without its port.
func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
