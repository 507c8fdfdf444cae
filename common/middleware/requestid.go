// Package middleware holds the HTTP middleware used by sentinel servers.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
)

const HeaderRequestID = "X-Request-ID"

type contextKey string

const RequestIDKey = contextKey("request-id")

// RequestID propagates X-Request-ID, generating a V7 uuid when absent. The
// id is echoed on the response and stored in the request context both under
// RequestIDKey and as the logging trace id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = newID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithTraceID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}
