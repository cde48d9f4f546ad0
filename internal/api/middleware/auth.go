package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

// Sessions is the part of identity.Provider the auth middleware needs.
type Sessions interface {
	ParseSession(token string) (*identity.Claims, error)
	GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error)
}

// Auth provides authentication and role-checking middleware.
type Auth struct {
	sessions Sessions
}

// NewAuth creates the session authentication middleware.
func NewAuth(s Sessions) *Auth {
	return &Auth{sessions: s}
}

// Authenticate validates the Bearer session token and loads the principal.
// The role is read from the identity store rather than the token so that an
// approval takes effect without a new login.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing or invalid Authorization header")
			return
		}

		claims, err := a.sessions.ParseSession(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired session")
			return
		}
		id, err := claims.PrincipalID()
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired session")
			return
		}

		p, err := a.sessions.GetPrincipal(r.Context(), id)
		if errors.Is(err, identity.ErrNotFound) {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Account no longer exists")
			return
		}
		if err != nil {
			slog.Error("session lookup failed", "principal_id", id, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "SESSION_LOOKUP_FAILED", "Something went wrong. Please try again.")
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), *p)))
	})
}

// RequireRole returns middleware that admits only the given roles.
func (a *Auth) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if ok && slices.Contains(roles, p.Role) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
