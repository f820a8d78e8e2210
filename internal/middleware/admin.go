package middleware

import (
	"context"
	"net/http"

	"lms/internal/model"

	"github.com/rs/zerolog"
)

// RoleLookup resolves the role stored on a user's profile.
type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

// RequireAdmin must run after AuthMiddleware. Non-admins get 403.
func RequireAdmin(roles RoleLookup, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
				return
			}
			role, err := roles.GetRole(r.Context(), userID)
			if err != nil {
				logger.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve user role")
				http.Error(w, "Failed to resolve user role", http.StatusInternalServerError)
				return
			}
			if role != model.RoleAdmin {
				logger.Warn().Str("user_id", userID).Str("path", r.URL.Path).Msg("Non-admin attempted admin route")
				http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
