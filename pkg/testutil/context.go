package testutil

import (
	"context"
	"net/http"

	id "crvs/pkg/domain"
	"crvs/pkg/requestcontext"
)

// WithActor adds the user, role and granted scopes to the request context,
// which is the state the JWT middleware leaves behind.
func WithActor(req *http.Request, userID, role string, scopes ...string) *http.Request {
	ctx := ActorContext(req.Context(), userID, role, scopes...)
	return req.WithContext(ctx)
}

// ActorContext is WithActor for service-level tests.
func ActorContext(ctx context.Context, userID, role string, scopes ...string) context.Context {
	if parsed, err := id.ParseUserID(userID); err == nil {
		ctx = requestcontext.WithUserID(ctx, parsed)
	}
	if role != "" {
		ctx = requestcontext.WithRole(ctx, role)
	}
	return requestcontext.WithScopes(ctx, scopes)
}
