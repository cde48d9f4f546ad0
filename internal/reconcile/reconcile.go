// Package reconcile repairs approvals whose role grant did not land.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
)

const batchSize = 500

// Reconciler re-applies operator role grants that failed during approval.
type Reconciler struct {
	store    store.Store
	identity identity.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Reconciler.
func New(st store.Store, idp identity.Provider, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, identity: idp, metrics: m, logger: logger.With("component", "reconcile")}
}

// RunOnce grants operator_admin to every approved tenant owner who lacks it
// and returns how many owners were repaired. It pages through all approved
// tenants, keeps going past individual failures and reports them joined.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	repaired := 0
	var errs []error
	var cursor *store.TenantCursor
	for {
		page, err := r.store.ListTenantsAfter(ctx, models.TenantApproved, cursor, batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list approved tenants: %w", err))
			return repaired, errors.Join(errs...)
		}
		for _, t := range page {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			ok, err := r.repair(ctx, t)
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				repaired++
			}
		}
		if len(page) < batchSize {
			return repaired, errors.Join(errs...)
		}
		cursor = store.CursorOf(page[len(page)-1])
	}
}

func (r *Reconciler) repair(ctx context.Context, t *models.Tenant) (bool, error) {
	p, err := r.identity.GetPrincipal(ctx, t.OwnerID)
	if errors.Is(err, identity.ErrNotFound) {
		r.logger.Error("approved tenant has no owner principal", "tenant_id", t.ID, "principal_id", t.OwnerID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get principal %s: %w", t.OwnerID, err)
	}
	if p.Role == models.RoleOperatorAdmin {
		return false, nil
	}
	if err := r.identity.SetRole(ctx, p.ID, models.RoleOperatorAdmin); err != nil {
		return false, fmt.Errorf("set role for %s: %w", p.ID, err)
	}
	r.metrics.TenantReconciled()
	r.logger.Info("granted missing operator role", "tenant_id", t.ID, "principal_id", p.ID, "previous_role", p.Role)
	return true, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("reconcile pass incomplete", "repaired", n, "error", err)
			}
		}
	}
}
