package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// headerRequestID is the header used to propagate request IDs between
// services.
const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by RequestID, or ""
// when the middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID returns a middleware that assigns every request an identifier.
// A usable incoming X-Request-ID is kept so IDs stay stable across service
// hops; anything missing, oversized, or non-printable is replaced with a
// fresh UUID. The ID is echoed on the response and stored in the request
// context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if !usableRequestID(id) {
				id = uuid.New().String()
			}
			w.Header().Set(headerRequestID, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// usableRequestID accepts non-empty printable ASCII up to 128 bytes.
func usableRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
