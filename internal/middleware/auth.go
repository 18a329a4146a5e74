package middleware

import (
	"errors"
	"net/http"

	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/logger"
	"github.com/formaai/ledger-api/internal/pkg/response"
)

// Auth returns middleware that resolves the bearer token to an identity.
// Suspended accounts are rejected with 403.
func Auth(resolver *auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			id, err := resolver.ResolveHeader(r.Context(), header)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					response.Unauthorized(w, "Invalid or expired token")
					return
				}
				logger.FromContext(r.Context()).Error().Err(err).Msg("identity resolution failed")
				response.InternalError(w)
				return
			}

			if id.IsSuspended {
				response.Forbidden(w, "Your account has been suspended")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// GetUserID extracts user ID from context
func GetUserID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

// RequireRole returns middleware that checks user role
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.RequireRole(auth.FromContext(r.Context()), role); err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					response.Unauthorized(w, "Authentication required")
					return
				}
				response.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that requires admin role
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(user.RoleAdmin)
}
