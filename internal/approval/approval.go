// Package approval moves operator applications out of pending.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

const codeInvalidTransition = "INVALID_TRANSITION"

// Machine moves pending tenant applications to approved or rejected.
type Machine struct {
	store    store.Store
	identity identity.Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewMachine creates a Machine. timeout bounds each identity call.
func NewMachine(st store.Store, idp identity.Provider, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: st, identity: idp, timeout: timeout, metrics: m, logger: logger}
}

// List returns applications in the given status (default pending), oldest first.
func (m *Machine) List(ctx context.Context, reviewer models.Principal, status models.TenantStatus) ([]*models.Tenant, error) {
	if err := requireReviewer(reviewer); err != nil {
		return nil, err
	}
	if status == "" {
		status = models.TenantPending
	}
	if _, err := models.ParseTenantStatus(string(status)); err != nil {
		return nil, apperr.Validation("status", "Unknown status.")
	}
	tenants, err := m.store.ListTenantsByStatus(ctx, status, 100)
	if err != nil {
		return nil, apperr.Dependency("TENANT_LIST_FAILED", err)
	}
	return tenants, nil
}

// Approve marks a pending tenant approved and grants its owner operator_admin.
// A failed role write leaves the tenant approved and returns a consistency gap,
// which the reconciler repairs.
func (m *Machine) Approve(ctx context.Context, reviewer models.Principal, tenantID uuid.UUID) (*models.Tenant, error) {
	t, err := m.transition(ctx, reviewer, tenantID, models.TenantApproved, nil)
	if err != nil {
		return nil, err
	}

	rctx, cancel := m.bounded(context.WithoutCancel(ctx))
	defer cancel()
	if err := m.identity.SetRole(rctx, t.OwnerID, models.RoleOperatorAdmin); err != nil {
		m.metrics.ConsistencyGap("approval")
		m.logger.Error("tenant approved but role grant failed",
			"tenant_id", t.ID, "principal_id", t.OwnerID, "reviewer_id", reviewer.ID, "error", err)
		return t, apperr.ConsistencyGap("ROLE_GRANT_FAILED",
			"The operator was approved but their access could not be granted yet. It will be retried automatically.", err)
	}

	m.logger.Info("tenant approved", "tenant_id", t.ID, "principal_id", t.OwnerID, "reviewer_id", reviewer.ID)
	return t, nil
}

// Reject marks a pending tenant rejected with a reason. Rejection is final.
func (m *Machine) Reject(ctx context.Context, reviewer models.Principal, tenantID uuid.UUID, reason string) (*models.Tenant, error) {
	reason = strings.TrimSpace(reason)
	if err := requireReviewer(reviewer); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.Validation("reason", "A rejection reason is required.")
	}
	t, err := m.transition(ctx, reviewer, tenantID, models.TenantRejected, &reason)
	if err != nil {
		return nil, err
	}
	m.logger.Info("tenant rejected", "tenant_id", t.ID, "reviewer_id", reviewer.ID)
	return t, nil
}

func (m *Machine) transition(ctx context.Context, reviewer models.Principal, tenantID uuid.UUID, to models.TenantStatus, reason *string) (*models.Tenant, error) {
	if err := requireReviewer(reviewer); err != nil {
		return nil, err
	}

	ctx, cancel := m.bounded(ctx)
	defer cancel()

	current, err := m.store.GetTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Operator not found.")
	}
	if err != nil {
		return nil, apperr.Dependency("TENANT_LOOKUP_FAILED", err)
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, invalidTransition(current.Status, to)
	}

	t, err := m.store.UpdateTenantStatus(ctx, tenantID, store.TenantStatusUpdate{
		From:            current.Status,
		To:              to,
		RejectionReason: reason,
		ReviewedBy:      reviewer.ID,
	})
	switch {
	case errors.Is(err, store.ErrStatusChanged):
		return nil, invalidTransition(current.Status, to)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("Operator not found.")
	case err != nil:
		return nil, apperr.Dependency("TENANT_UPDATE_FAILED", err)
	}
	return t, nil
}

func (m *Machine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func requireReviewer(p models.Principal) error {
	if p.Role != models.RoleReviewer {
		return apperr.Forbidden("Only reviewers can review operator applications.")
	}
	return nil
}

func invalidTransition(from, to models.TenantStatus) error {
	verb := "approved"
	if to == models.TenantRejected {
		verb = "rejected"
	}
	msg := fmt.Sprintf("This application is %s and can no longer be %s.", from, verb)
	return apperr.Validation("status", msg).WithCode(codeInvalidTransition)
}
