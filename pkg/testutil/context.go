package testutil

import (
	"context"
	"net/http"

	"caretrail/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context. This
// simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, id int64, role, displayName string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.ActorInfo{
		ID:          id,
		Role:        role,
		DisplayName: displayName,
	})
	return req.WithContext(ctx)
}

// WithClientMetadata adds client IP and User-Agent to the request context,
// mirroring the metadata middleware.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
