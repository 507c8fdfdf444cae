package middleware

import (
	"net/http"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/httputil"
	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog logs one line per request at debug level, or warn for 5xx.
func AccessLog(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				logging.Duration(time.Since(start)),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.WarnContext(r.Context(), "request failed", args...)
				return
			}
			logger.DebugContext(r.Context(), "request served", args...)
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.ErrorContext(r.Context(), "handler panicked",
						"path", r.URL.Path,
						"panic", p)
					httputil.WriteJSONAPIInternalError(w, "an internal error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
