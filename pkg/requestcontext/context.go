// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
// Usage in services (read values):
//
//	actor := requestcontext.UserID(ctx)
//	scopes := requestcontext.Scopes(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithScopes(ctx, []string{"record.create[event=birth]"})
package requestcontext

import (
	"context"
	"time"

	id "crvs/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey      struct{}
	roleKey        struct{}
	officeKey      struct{}
	scopesKey      struct{}
	bearerTokenKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyOffice      = officeKey{}
	ContextKeyScopes      = scopesKey{}
	ContextKeyBearerToken = bearerTokenKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Actor context
// -----------------------------------------------------------------------------

// UserID retrieves the authenticated user ID from the context.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return ""
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Role retrieves the actor's role from the context.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyRole).(string); ok {
		return role
	}
	return ""
}

// WithRole injects the actor's role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// PrimaryOfficeID retrieves the actor's office (createdAtLocation default).
func PrimaryOfficeID(ctx context.Context) string {
	if office, ok := ctx.Value(ContextKeyOffice).(string); ok {
		return office
	}
	return ""
}

// WithPrimaryOfficeID injects the actor's office into the context.
func WithPrimaryOfficeID(ctx context.Context, office string) context.Context {
	return context.WithValue(ctx, ContextKeyOffice, office)
}

// Scopes retrieves the granted scope strings from the context.
func Scopes(ctx context.Context) []string {
	if scopes, ok := ctx.Value(ContextKeyScopes).([]string); ok {
		return scopes
	}
	return nil
}

// WithScopes injects granted scopes into the context.
func WithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, ContextKeyScopes, scopes)
}

// BearerToken retrieves the raw access token, forwarded to country config.
func BearerToken(ctx context.Context) string {
	if token, ok := ctx.Value(ContextKeyBearerToken).(string); ok {
		return token
	}
	return ""
}

// WithBearerToken injects the raw access token into the context.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeyBearerToken, token)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
