package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/internal/ratelimit"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// RateLimit returns an HTTP middleware that rejects requests over the
// limiter's budget with 429 Too Many Requests, a Retry-After header and a
// JSON body carrying retryAfter in seconds.
func RateLimit(limiter *ratelimit.Limiter, logger *logging.Logger, m *metrics.LeadMetrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			decision := limiter.Check(r.Context(), ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Capacity()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				m.ObserveRateLimited(limiter.Name())
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "retry_after", decision.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success":    false,
					"error":      "Too many requests. Please try again later.",
					"retryAfter": decision.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP picks the first X-Forwarded-For entry, then X-Real-Ip, then the
// connection address. Requests with none of them share the "unknown" bucket.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
