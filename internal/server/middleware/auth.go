package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/identity/service"
	"github.com/xboybx/Authentication-System/internal/policy/engine"
	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/server/response"
	userdomain "github.com/xboybx/Authentication-System/internal/user/domain"
)

const bearerPrefix = "bearer "

// TokenExpiringHeader is set to "true" on authenticated responses whose access token is close to expiry.
const TokenExpiringHeader = "X-Token-Expiring"

// Authenticator verifies an access token and loads its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*userdomain.User, *security.Claims, error)
}

// ExpiryHinter is implemented by authenticators that can tell when an accepted access token is about to expire.
type ExpiryHinter interface {
	AccessExpiringSoon(accessToken string) bool
}

// Authenticate requires a valid Bearer access token for an active user and stores the identity in the
// request context. The role comes from the user record, not the token. If the authenticator implements ExpiryHinter,
// responses for tokens close to expiry carry TokenExpiringHeader.
func Authenticate(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, response.CodeNoToken, "Access token required")
				return
			}
			user, _, err := a.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, service.ErrTokenExpired):
				response.Error(w, http.StatusUnauthorized, response.CodeTokenExpired, "Access token expired")
				return
			case errors.Is(err, service.ErrTokenMalformed), errors.Is(err, service.ErrTokenSignatureInvalid):
				response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Invalid access token")
				return
			case errors.Is(err, service.ErrSubjectInactive):
				response.Error(w, http.StatusUnauthorized, response.CodeUserNotFound, "User not found or inactive")
				return
			default:
				log.Error("token authentication error", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
				response.Error(w, http.StatusInternalServerError, response.CodeVerificationFailed, "Token verification failed")
				return
			}
			if h, ok := a.(ExpiryHinter); ok && h.AccessExpiringSoon(token) {
				w.Header().Set(TokenExpiringHeader, "true")
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user.ID, user.Role)))
		})
	}
}

// OptionalAuth stores the identity when a valid Bearer token for an active user is present and
// otherwise passes the request through unchanged.
func OptionalAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractBearer(r); token != "" {
				if user, _, err := a.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), user.ID, user.Role))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthorizeRoles asks the policy evaluator whether the authenticated role may perform action.
// It must run after Authenticate. Evaluation errors deny.
func AuthorizeRoles(eval engine.Evaluator, action string, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetUserID(r.Context()); !ok {
				response.Error(w, http.StatusUnauthorized, response.CodeAuthRequired, "Authentication required")
				return
			}
			role, _ := GetRole(r.Context())
			allowed, err := eval.Allow(r.Context(), role, action)
			if err != nil {
				log.Error("policy evaluation failed", zap.String("action", action), zap.Error(err))
			}
			if !allowed {
				response.Error(w, http.StatusForbidden, response.CodeInsufficientPermissions, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
