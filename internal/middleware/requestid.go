package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

// RequestIDKey is the context key used to store the request ID.
const RequestIDKey ctxKey = "request_id"

// RequestIDHeader carries the request ID to the upstream and back to the client.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that ensures every request has an X-Request-ID.
// An incoming ID is preserved; otherwise a new UUID v4 is generated. The ID
// is set on the request header so the upstream sees it, in the request
// context, and on the response unless the upstream already echoed one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		r.Header.Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		withDefaults(next, map[string]string{RequestIDHeader: id}, w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from a context. Returns empty string
// if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
