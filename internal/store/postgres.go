package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

const tenantColumns = `id, owner_id, name, registration_number, contact_email, verification_docs,
	status, rejection_reason, reviewed_by, reviewed_at, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	var status string
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.RegistrationNumber, &t.ContactEmail,
		&t.VerificationDocs, &status, &t.RejectionReason, &t.ReviewedBy, &t.ReviewedAt,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseTenantStatus(status)
	if err != nil {
		return nil, err
	}
	t.Status = st
	return &t, nil
}

func (s *PostgresStore) InsertTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, owner_id, name, registration_number, contact_email, verification_docs, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.OwnerID, t.Name, t.RegistrationNumber, t.ContactEmail, nonNil(t.VerificationDocs),
		string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if dk := duplicateKey(err); dk != nil {
			return dk
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE owner_id = $1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant by owner: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTenantsByStatus(ctx context.Context, status models.TenantStatus, limit int) ([]*models.Tenant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*models.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// ListTenantsAfter pages through tenants with status in (created_at, id) order,
// starting just past after. A nil cursor starts at the beginning.
func (s *PostgresStore) ListTenantsAfter(ctx context.Context, status models.TenantStatus, after *TenantCursor, limit int) ([]*models.Tenant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
			string(status), limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+tenantColumns+` FROM tenants
			 WHERE status = $1 AND (created_at, id) > ($2, $3)
			 ORDER BY created_at, id LIMIT $4`,
			string(status), after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list tenants after cursor: %w", err)
	}
	defer rows.Close()

	tenants := []*models.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateTenantStatus writes the new status only if the row still holds upd.From.
// It returns ErrNotFound for an unknown id and ErrStatusChanged if another writer got there first.
func (s *PostgresStore) UpdateTenantStatus(ctx context.Context, id uuid.UUID, upd TenantStatusUpdate) (*models.Tenant, error) {
	if !upd.From.CanTransitionTo(upd.To) {
		return nil, fmt.Errorf("invalid tenant status transition: %s -> %s", upd.From, upd.To)
	}

	now := time.Now().UTC()
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`UPDATE tenants SET status = $3, rejection_reason = $4, reviewed_by = $5, reviewed_at = $6, updated_at = $6
		 WHERE id = $1 AND status = $2
		 RETURNING `+tenantColumns,
		id, string(upd.From), string(upd.To), upd.RejectionReason, upd.ReviewedBy, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update tenant status: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check tenant exists: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrStatusChanged
}

// --- Listings ---

const listingColumns = `id, tenant_id, name, plate_number, capacity, rate_per_hour::text, description,
	features, cover_photo, exterior_photos, interior_photos, is_available, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	var rate string
	if err := row.Scan(&l.ID, &l.TenantID, &l.Name, &l.PlateNumber, &l.Capacity, &rate,
		&l.Description, &l.Features, &l.CoverPhoto, &l.ExteriorPhotos, &l.InteriorPhotos,
		&l.IsAvailable, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate_per_hour %q: %w", rate, err)
	}
	l.RatePerHour = d
	return &l, nil
}

func (s *PostgresStore) InsertListing(ctx context.Context, l *models.Listing) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, tenant_id, name, plate_number, capacity, rate_per_hour, description, features,
		                       cover_photo, exterior_photos, interior_photos, is_available, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9, $10, $11, $12, $13, $14)`,
		l.ID, l.TenantID, l.Name, l.PlateNumber, l.Capacity, l.RatePerHour.String(), l.Description,
		nonNil(l.Features), l.CoverPhoto, nonNil(l.ExteriorPhotos), nonNil(l.InteriorPhotos), l.IsAvailable,
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if dk := duplicateKey(err); dk != nil {
			return dk
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *models.Listing) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET name = $3, plate_number = $4, capacity = $5, rate_per_hour = $6::text::numeric,
		        description = $7, features = $8, cover_photo = $9, exterior_photos = $10,
		        interior_photos = $11, is_available = $12, updated_at = $13
		 WHERE id = $1 AND tenant_id = $2`,
		l.ID, l.TenantID, l.Name, l.PlateNumber, l.Capacity, l.RatePerHour.String(), l.Description,
		nonNil(l.Features), l.CoverPhoto, nonNil(l.ExteriorPhotos), nonNil(l.InteriorPhotos), l.IsAvailable,
		l.UpdatedAt)
	if err != nil {
		if dk := duplicateKey(err); dk != nil {
			return dk
		}
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) ListListingsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := []*models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) SetListingAvailability(ctx context.Context, id, tenantID uuid.UUID, available bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET is_available = $3, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, available)
	if err != nil {
		return fmt.Errorf("set listing availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteListing removes a listing owned by tenantID. A listing owned by
// another tenant is reported as ErrNotFound.
func (s *PostgresStore) DeleteListing(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nonNil keeps NOT NULL array columns from receiving NULL for an empty slice.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// duplicateKey converts a unique constraint violation into a DuplicateKeyError.
func duplicateKey(err error) *DuplicateKeyError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return &DuplicateKeyError{Constraint: pgErr.ConstraintName}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
