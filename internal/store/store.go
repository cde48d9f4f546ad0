package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStatusChanged is returned by a conditional status update when the row
// no longer holds the expected status.
var ErrStatusChanged = errors.New("status changed concurrently")

// Unique constraint names from migrations/000001_init.up.sql.
const (
	ConstraintRegistrationNumber = "tenants_registration_number_key"
	ConstraintTenantOwner        = "tenants_owner_id_key"
	ConstraintPlateNumber        = "listings_plate_number_key"
	ConstraintPrincipalEmail     = "principals_email_key"
)

// DuplicateKeyError reports which unique constraint a write violated.
// It matches ErrDuplicateKey with errors.Is.
type DuplicateKeyError struct {
	Constraint string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key violates %s", e.Constraint)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

// ViolatedConstraint returns the constraint name if err is a duplicate key error.
func ViolatedConstraint(err error) (string, bool) {
	var dk *DuplicateKeyError
	if errors.As(err, &dk) {
		return dk.Constraint, true
	}
	return "", false
}

// Store is the data access interface for tenants and listings.
type Store interface {
	Ping(ctx context.Context) error

	InsertTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Tenant, error)
	ListTenantsByStatus(ctx context.Context, status models.TenantStatus, limit int) ([]*models.Tenant, error)
	ListTenantsAfter(ctx context.Context, status models.TenantStatus, after *TenantCursor, limit int) ([]*models.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id uuid.UUID, upd TenantStatusUpdate) (*models.Tenant, error)

	InsertListing(ctx context.Context, l *models.Listing) error
	UpdateListing(ctx context.Context, l *models.Listing) error
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListListingsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Listing, error)
	SetListingAvailability(ctx context.Context, id, tenantID uuid.UUID, available bool) error
	DeleteListing(ctx context.Context, id, tenantID uuid.UUID) error
}

// TenantCursor is a keyset position in tenants ordered by (created_at, id).
type TenantCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorOf returns the position just past t.
func CursorOf(t *models.Tenant) *TenantCursor {
	return &TenantCursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// TenantStatusUpdate is a compare-and-set on tenants.status.
// The row is only written while it still holds From.
type TenantStatusUpdate struct {
	From            models.TenantStatus
	To              models.TenantStatus
	RejectionReason *string
	ReviewedBy      uuid.UUID
}
