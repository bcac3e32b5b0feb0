package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// RequestLogger logs one line per request with its outcome. The request id is
// taken from chi's RequestID middleware, then X-Request-ID, then generated,
// and echoed back so funnel clients can quote it.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			if reqID == "" {
				reqID = r.Header.Get("X-Request-ID")
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"request_id", reqID,
				"client_ip", ClientIP(r),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if sid := r.Header.Get("X-Session-ID"); sid != "" {
				attrs = append(attrs, "session_id", sid)
			}
			switch {
			case status >= 500:
				logger.Error("request failed", attrs...)
			case status == http.StatusTooManyRequests:
				logger.Warn("request throttled", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}
