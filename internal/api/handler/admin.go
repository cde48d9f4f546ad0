package handler

import (
	"context"
	"net/http"

	mw "github.com/fleetgate/fleetgate/internal/api/middleware"
	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

// Reviews is the approval surface the admin handlers depend on.
type Reviews interface {
	List(ctx context.Context, reviewer models.Principal, status models.TenantStatus) ([]*models.Tenant, error)
	Approve(ctx context.Context, reviewer models.Principal, tenantID uuid.UUID) (*models.Tenant, error)
	Reject(ctx context.Context, reviewer models.Principal, tenantID uuid.UUID, reason string) (*models.Tenant, error)
}

func principal(r *http.Request) (models.Principal, error) {
	p, ok := mw.GetPrincipal(r)
	if !ok {
		return models.Principal{}, apperr.Unauthorized("Please log in.")
	}
	return p, nil
}

// NewListTenantsHandler returns an http.HandlerFunc for GET /api/v1/admin/tenants.
func NewListTenantsHandler(svc Reviews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		tenants, err := svc.List(r.Context(), p, models.TenantStatus(r.URL.Query().Get("status")))
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, tenants)
	}
}

// NewApproveTenantHandler returns an http.HandlerFunc for
// POST /api/v1/admin/tenants/{tenantID}/approve.
func NewApproveTenantHandler(svc Reviews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		id, err := uuidParam(r, "tenantID")
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		t, err := svc.Approve(r.Context(), p, id)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewRejectTenantHandler returns an http.HandlerFunc for
// POST /api/v1/admin/tenants/{tenantID}/reject.
func NewRejectTenantHandler(svc Reviews) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		id, err := uuidParam(r, "tenantID")
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &req); err != nil {
			response.Fail(w, r, err)
			return
		}
		t, err := svc.Reject(r.Context(), p, id, req.Reason)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}
