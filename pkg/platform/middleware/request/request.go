// Package request provides request correlation middleware. Every request
// gets an ID (incoming X-Request-ID or a fresh UUID) stored in context and
// echoed back on the response.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"teagate/pkg/requestcontext"
)

const headerRequestID = "X-Request-ID"

// Middleware attaches a request ID to the context and response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
