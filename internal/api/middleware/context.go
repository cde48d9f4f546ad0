package middleware

import (
	"context"
	"net/http"

	"github.com/fleetgate/fleetgate/pkg/models"
)

type contextKey string

const principalKey contextKey = "principal"

func SetPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the authenticated caller set by Auth.Authenticate.
func GetPrincipal(r *http.Request) (models.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(models.Principal)
	return p, ok
}
