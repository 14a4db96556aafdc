// Package middleware holds the HTTP middleware of the auth API: request context, authentication,
// policy authorization, logging, metrics, recovery and timeouts.
package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	roleKey      = contextKey{"role"}
	clientIPKey  = contextKey{"client_ip"}
	userAgentKey = contextKey{"user_agent"}
	requestIDKey = contextKey{"request_id"}
)

// WithIdentity returns a context carrying the authenticated user id and role.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// GetUserID returns the authenticated user id and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// GetRole returns the authenticated user's role and true if set; otherwise "", false.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

// WithClient returns a context carrying the caller's IP and user agent.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIP returns the caller IP stored by RequestContext, or "unknown".
// It matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// UserAgent returns the caller user agent stored by RequestContext, or "Unknown".
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey).(string); ok && v != "" {
		return v
	}
	return "Unknown"
}

// RequestID returns the request id stored by RequestContext, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
