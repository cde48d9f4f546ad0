package api

import (
	"net/http"

	"github.com/fleetgate/fleetgate/internal/api/handler"
	mw "github.com/fleetgate/fleetgate/internal/api/middleware"
	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler http.HandlerFunc

	Onboarding     handler.Onboarding
	Reviews        handler.Reviews
	Listings       *handler.Listings
	MaxUploadBytes int64
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(deps.Metrics.Instrument)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Public, rate limited by client address
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		if deps.Onboarding != nil {
			r.Post("/api/v1/auth/register-rider", handler.NewRegisterRiderHandler(deps.Onboarding))
			r.Post("/api/v1/auth/login", handler.NewLoginHandler(deps.Onboarding))
			r.Post("/api/v1/tenants/register", handler.NewRegisterTenantHandler(deps.Onboarding, deps.MaxUploadBytes))
		}
		if deps.Listings != nil {
			r.Get("/api/v1/listings/{listingID}", deps.Listings.Get)
		}
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireRole(models.RoleReviewer))

			if deps.Reviews != nil {
				r.Get("/api/v1/admin/tenants", handler.NewListTenantsHandler(deps.Reviews))
				r.Post("/api/v1/admin/tenants/{tenantID}/approve", handler.NewApproveTenantHandler(deps.Reviews))
				r.Post("/api/v1/admin/tenants/{tenantID}/reject", handler.NewRejectTenantHandler(deps.Reviews))
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireRole(models.RoleOperatorAdmin))

			if l := deps.Listings; l != nil {
				r.Get("/api/v1/fleet/listings", l.List)
				r.Post("/api/v1/fleet/listings", l.Create)
				r.Put("/api/v1/fleet/listings/{listingID}", l.Update)
				r.Patch("/api/v1/fleet/listings/{listingID}/availability", l.SetAvailability)
				r.Delete("/api/v1/fleet/listings/{listingID}", l.Delete)
			}
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented")
	}
}
