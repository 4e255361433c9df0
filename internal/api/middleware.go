package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/estimator/internal/backend"
	"github.com/terra-clan/estimator/internal/models"
)

// Cookie names shared with the front-end
const (
	AccessTokenCookie  = "estimator-access-token"
	RefreshTokenCookie = "estimator-refresh-token"
	VerifierCookie     = "estimator-code-verifier"
)

// AuthMiddleware authenticates requests against the hosted backend
type AuthMiddleware struct {
	users UserVerifier
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(users UserVerifier) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

// Authenticate verifies the access token from the Authorization header
// ("Bearer <token>") or the access-token cookie
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractAccessToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}

		user, err := m.users.GetUser(r.Context(), token)
		if err != nil {
			if errors.Is(err, backend.ErrInvalidToken) {
				slog.Warn("invalid access token", "remote_addr", r.RemoteAddr)
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired access token")
				return
			}
			slog.Error("failed to verify access token", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		slog.Debug("authenticated request", "user_id", user.ID)

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns middleware that admits only users holding one of roles
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			if !user.HasRole(roles...) {
				slog.Warn("permission denied",
					"user_id", user.ID,
					"required", roles,
					"has", user.TeamRole(),
				)
				respondError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAccessToken reads the bearer token, falling back to the cookie
func extractAccessToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
		return ""
	}

	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
