package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fleetgate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedPrincipal inserts a principal row directly; principals are owned by the identity provider.
func seedPrincipal(t *testing.T, pool *pgxpool.Pool, role models.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO principals (id, full_name, email, password_hash, role, confirmed) VALUES ($1, $2, $3, $4, $5, TRUE)`,
		id, "Test Person", id.String()+"@example.com", "hash", string(role))
	require.NoError(t, err)
	return id
}

func newTenant(ownerID uuid.UUID, regNo string) *models.Tenant {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Tenant{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Name:               "Super Metro",
		RegistrationNumber: regNo,
		ContactEmail:       "ops@supermetro.co.ke",
		VerificationDocs:   []string{ownerID.String() + "/1700000000000-permit.pdf"},
		Status:             models.TenantPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newListing(tenantID uuid.UUID, plate string) *models.Listing {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Listing{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Name:           "Isuzu NQR",
		PlateNumber:    plate,
		Capacity:       33,
		RatePerHour:    decimal.RequireFromString("2500.50"),
		Description:    "Route 44",
		Features:       []string{"wifi", "usb charging"},
		CoverPhoto:     "owner/covers/a.jpg",
		ExteriorPhotos: []string{"owner/exterior/b.jpg"},
		IsAvailable:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- Tenant Tests ---

func TestTenant_InsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	owner := seedPrincipal(t, pool, models.RoleRider)
	tenant := newTenant(owner, "TV-001")
	require.NoError(t, s.InsertTenant(ctx, tenant))

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Super Metro", got.Name)
	assert.Equal(t, models.TenantPending, got.Status)
	assert.Equal(t, tenant.VerificationDocs, got.VerificationDocs)
	assert.Nil(t, got.RejectionReason)
	assert.Nil(t, got.ReviewedBy)

	byOwner, err := s.FindTenantByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byOwner.ID)
}

func TestTenant_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetTenant(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindTenantByOwner(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_DuplicateRegistrationNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.InsertTenant(ctx, newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001")))

	err := s.InsertTenant(ctx, newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001"))
	require.ErrorIs(t, err, store.ErrDuplicateKey)
	constraint, ok := store.ViolatedConstraint(err)
	require.True(t, ok)
	assert.Equal(t, store.ConstraintRegistrationNumber, constraint)
}

func TestTenant_OneTenantPerOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	owner := seedPrincipal(t, pool, models.RoleRider)
	require.NoError(t, s.InsertTenant(ctx, newTenant(owner, "TV-001")))

	err := s.InsertTenant(ctx, newTenant(owner, "TV-002"))
	constraint, ok := store.ViolatedConstraint(err)
	require.True(t, ok)
	assert.Equal(t, store.ConstraintTenantOwner, constraint)
}

func TestTenant_ConcurrentRegistrationNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	owners := []uuid.UUID{seedPrincipal(t, pool, models.RoleRider), seedPrincipal(t, pool, models.RoleRider)}

	var wg sync.WaitGroup
	errs := make([]error, len(owners))
	for i, owner := range owners {
		wg.Add(1)
		go func(i int, owner uuid.UUID) {
			defer wg.Done()
			errs[i] = s.InsertTenant(ctx, newTenant(owner, "TV-001"))
		}(i, owner)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, store.ErrDuplicateKey):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	pending, err := s.ListTenantsByStatus(ctx, models.TenantPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestTenant_ListByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	reviewer := seedPrincipal(t, pool, models.RoleReviewer)

	first := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001")
	second := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-002")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	third := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-003")
	for _, tn := range []*models.Tenant{first, second, third} {
		require.NoError(t, s.InsertTenant(ctx, tn))
	}
	_, err := s.UpdateTenantStatus(ctx, third.ID, store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantApproved, ReviewedBy: reviewer,
	})
	require.NoError(t, err)

	pending, err := s.ListTenantsByStatus(ctx, models.TenantPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	approved, err := s.ListTenantsByStatus(ctx, models.TenantApproved, 10)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, third.ID, approved[0].ID)
}

func TestTenant_ListAfterPagesInKeyOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Microsecond)
	var inserted []*models.Tenant
	for i := range 5 {
		tn := newTenant(seedPrincipal(t, pool, models.RoleRider), fmt.Sprintf("TV-%03d", i))
		tn.CreatedAt = created
		if i == 4 {
			tn.CreatedAt = created.Add(time.Second)
		}
		require.NoError(t, s.InsertTenant(ctx, tn))
		inserted = append(inserted, tn)
	}

	var seen []uuid.UUID
	var cursor *store.TenantCursor
	for {
		page, err := s.ListTenantsAfter(ctx, models.TenantPending, cursor, 2)
		require.NoError(t, err)
		for _, tn := range page {
			seen = append(seen, tn.ID)
		}
		if len(page) < 2 {
			break
		}
		cursor = store.CursorOf(page[len(page)-1])
	}

	require.Len(t, seen, 5)
	assert.ElementsMatch(t, []uuid.UUID{inserted[0].ID, inserted[1].ID, inserted[2].ID, inserted[3].ID, inserted[4].ID}, seen)
	assert.Equal(t, inserted[4].ID, seen[4], "newest tenant comes last")
}

func TestTenant_UpdateStatusApprove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	reviewer := seedPrincipal(t, pool, models.RoleReviewer)

	tenant := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001")
	require.NoError(t, s.InsertTenant(ctx, tenant))

	got, err := s.UpdateTenantStatus(ctx, tenant.ID, store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantApproved, ReviewedBy: reviewer,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TenantApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, reviewer, *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)
	assert.Nil(t, got.RejectionReason)
}

func TestTenant_UpdateStatusReject(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	reviewer := seedPrincipal(t, pool, models.RoleReviewer)

	tenant := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001")
	require.NoError(t, s.InsertTenant(ctx, tenant))

	reason := "permit expired"
	got, err := s.UpdateTenantStatus(ctx, tenant.ID, store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantRejected, RejectionReason: &reason, ReviewedBy: reviewer,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TenantRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "permit expired", *got.RejectionReason)
}

func TestTenant_UpdateStatusLostRace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	reviewer := seedPrincipal(t, pool, models.RoleReviewer)

	tenant := newTenant(seedPrincipal(t, pool, models.RoleRider), "TV-001")
	require.NoError(t, s.InsertTenant(ctx, tenant))

	_, err := s.UpdateTenantStatus(ctx, tenant.ID, store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantApproved, ReviewedBy: reviewer,
	})
	require.NoError(t, err)

	reason := "late"
	_, err = s.UpdateTenantStatus(ctx, tenant.ID, store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantRejected, RejectionReason: &reason, ReviewedBy: reviewer,
	})
	assert.ErrorIs(t, err, store.ErrStatusChanged)

	got, err := s.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantApproved, got.Status)
}

func TestTenant_UpdateStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.UpdateTenantStatus(context.Background(), uuid.New(), store.TenantStatusUpdate{
		From: models.TenantPending, To: models.TenantApproved, ReviewedBy: uuid.New(),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenant_UpdateStatusInvalidTransition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.UpdateTenantStatus(context.Background(), uuid.New(), store.TenantStatusUpdate{
		From: models.TenantApproved, To: models.TenantPending, ReviewedBy: uuid.New(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tenant status transition")
}

// --- Listing Tests ---

func seedTenant(t *testing.T, pool *pgxpool.Pool, s *store.PostgresStore, regNo string) *models.Tenant {
	t.Helper()
	tenant := newTenant(seedPrincipal(t, pool, models.RoleOperatorAdmin), regNo)
	require.NoError(t, s.InsertTenant(context.Background(), tenant))
	return tenant
}

func TestListing_InsertAndFind(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")

	listing := newListing(tenant.ID, "KDA 123A")
	require.NoError(t, s.InsertListing(ctx, listing))

	got, err := s.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "KDA 123A", got.PlateNumber)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(got.RatePerHour))
	assert.Equal(t, []string{"wifi", "usb charging"}, got.Features)
	assert.Equal(t, []string{"owner/exterior/b.jpg"}, got.ExteriorPhotos)
	assert.Empty(t, got.InteriorPhotos)
	assert.True(t, got.IsAvailable)
}

func TestListing_DuplicatePlate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")

	require.NoError(t, s.InsertListing(ctx, newListing(tenant.ID, "KDA 123A")))

	err := s.InsertListing(ctx, newListing(tenant.ID, "KDA 123A"))
	constraint, ok := store.ViolatedConstraint(err)
	require.True(t, ok)
	assert.Equal(t, store.ConstraintPlateNumber, constraint)
}

func TestListing_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")

	listing := newListing(tenant.ID, "KDA 123A")
	require.NoError(t, s.InsertListing(ctx, listing))

	listing.Name = "Isuzu FRR"
	listing.InteriorPhotos = []string{"owner/interior/c.jpg"}
	listing.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateListing(ctx, listing))

	got, err := s.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Isuzu FRR", got.Name)
	assert.Equal(t, []string{"owner/interior/c.jpg"}, got.InteriorPhotos)
}

func TestListing_UpdateOtherTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	owner := seedTenant(t, pool, s, "TV-001")
	other := seedTenant(t, pool, s, "TV-002")

	listing := newListing(owner.ID, "KDA 123A")
	require.NoError(t, s.InsertListing(ctx, listing))

	listing.TenantID = other.ID
	err := s.UpdateListing(ctx, listing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListing_ListByTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")
	other := seedTenant(t, pool, s, "TV-002")

	require.NoError(t, s.InsertListing(ctx, newListing(tenant.ID, "KDA 123A")))
	require.NoError(t, s.InsertListing(ctx, newListing(tenant.ID, "KDB 456B")))
	require.NoError(t, s.InsertListing(ctx, newListing(other.ID, "KDC 789C")))

	listings, err := s.ListListingsByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, listings, 2)

	none, err := s.ListListingsByTenant(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListing_SetAvailability(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")

	listing := newListing(tenant.ID, "KDA 123A")
	require.NoError(t, s.InsertListing(ctx, listing))

	require.NoError(t, s.SetListingAvailability(ctx, listing.ID, tenant.ID, false))
	got, err := s.FindListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)

	err = s.SetListingAvailability(ctx, listing.ID, uuid.New(), true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListing_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	tenant := seedTenant(t, pool, s, "TV-001")

	listing := newListing(tenant.ID, "KDA 123A")
	require.NoError(t, s.InsertListing(ctx, listing))

	err := s.DeleteListing(ctx, listing.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteListing(ctx, listing.ID, tenant.ID))
	_, err = s.FindListing(ctx, listing.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
