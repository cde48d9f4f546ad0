// Package memstore is an in-memory store.Store for tests. It enforces the same
// unique constraints as the Postgres schema so conflict paths can be exercised.
package memstore

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

// Store holds tenants and listings in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*models.Tenant
	listings map[uuid.UUID]*models.Listing

	// Err, when set, is returned by every write method.
	Err error
	// Calls counts invocations per method name.
	Calls map[string]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tenants:  make(map[uuid.UUID]*models.Tenant),
		listings: make(map[uuid.UUID]*models.Listing),
		Calls:    make(map[string]int),
	}
}

func (s *Store) record(name string) {
	s.Calls[name]++
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) InsertTenant(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertTenant")
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.tenants {
		if existing.RegistrationNumber == t.RegistrationNumber {
			return &store.DuplicateKeyError{Constraint: store.ConstraintRegistrationNumber}
		}
		if existing.OwnerID == t.OwnerID {
			return &store.DuplicateKeyError{Constraint: store.ConstraintTenantOwner}
		}
	}
	cp := cloneTenant(t)
	s.tenants[t.ID] = cp
	return nil
}

func (s *Store) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (s *Store) FindTenantByOwner(_ context.Context, ownerID uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.OwnerID == ownerID {
			return cloneTenant(t), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTenantsByStatus(_ context.Context, status models.TenantStatus, limit int) ([]*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Tenant{}
	for _, t := range s.tenants {
		if t.Status == status {
			out = append(out, cloneTenant(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListTenantsAfter(_ context.Context, status models.TenantStatus, after *store.TenantCursor, limit int) ([]*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListTenantsAfter")
	out := []*models.Tenant{}
	for _, t := range s.tenants {
		if t.Status == status && (after == nil || cursorLess(*after, t)) {
			out = append(out, cloneTenant(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return cursorLess(*store.CursorOf(out[i]), out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cursorLess reports whether c sorts before t in (created_at, id) order.
func cursorLess(c store.TenantCursor, t *models.Tenant) bool {
	if !c.CreatedAt.Equal(t.CreatedAt) {
		return c.CreatedAt.Before(t.CreatedAt)
	}
	return bytes.Compare(c.ID[:], t.ID[:]) < 0
}

func (s *Store) UpdateTenantStatus(_ context.Context, id uuid.UUID, upd store.TenantStatusUpdate) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateTenantStatus")
	if s.Err != nil {
		return nil, s.Err
	}
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status != upd.From {
		return nil, store.ErrStatusChanged
	}
	now := time.Now().UTC()
	reviewer := upd.ReviewedBy
	t.Status = upd.To
	t.RejectionReason = upd.RejectionReason
	t.ReviewedBy = &reviewer
	t.ReviewedAt = &now
	t.UpdatedAt = now
	return cloneTenant(t), nil
}

// Tenants returns a snapshot of every stored tenant.
func (s *Store) Tenants() []*models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, cloneTenant(t))
	}
	return out
}

func (s *Store) InsertListing(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertListing")
	if s.Err != nil {
		return s.Err
	}
	if s.plateTaken(l.PlateNumber, l.ID) {
		return &store.DuplicateKeyError{Constraint: store.ConstraintPlateNumber}
	}
	s.listings[l.ID] = cloneListing(l)
	return nil
}

func (s *Store) UpdateListing(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateListing")
	if s.Err != nil {
		return s.Err
	}
	existing, ok := s.listings[l.ID]
	if !ok || existing.TenantID != l.TenantID {
		return store.ErrNotFound
	}
	if s.plateTaken(l.PlateNumber, l.ID) {
		return &store.DuplicateKeyError{Constraint: store.ConstraintPlateNumber}
	}
	s.listings[l.ID] = cloneListing(l)
	return nil
}

func (s *Store) plateTaken(plate string, except uuid.UUID) bool {
	for id, l := range s.listings {
		if id != except && l.PlateNumber == plate {
			return true
		}
	}
	return false
}

func (s *Store) FindListing(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneListing(l), nil
}

func (s *Store) ListListingsByTenant(_ context.Context, tenantID uuid.UUID) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Listing{}
	for _, l := range s.listings {
		if l.TenantID == tenantID {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetListingAvailability(_ context.Context, id, tenantID uuid.UUID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.TenantID != tenantID {
		return store.ErrNotFound
	}
	l.IsAvailable = available
	return nil
}

func (s *Store) DeleteListing(_ context.Context, id, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteListing")
	l, ok := s.listings[id]
	if !ok || l.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(s.listings, id)
	return nil
}

func cloneTenant(t *models.Tenant) *models.Tenant {
	cp := *t
	cp.VerificationDocs = slices.Clone(t.VerificationDocs)
	return &cp
}

func cloneListing(l *models.Listing) *models.Listing {
	cp := *l
	cp.Features = slices.Clone(l.Features)
	cp.ExteriorPhotos = slices.Clone(l.ExteriorPhotos)
	cp.InteriorPhotos = slices.Clone(l.InteriorPhotos)
	return &cp
}

var _ store.Store = (*Store)(nil)
