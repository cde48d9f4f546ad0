// Package listing manages an approved operator's vehicle listings.
package listing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/media"
	"github.com/fleetgate/fleetgate/internal/safety"
	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxFeatures = 20

var maxRate = decimal.New(1, 10)

// Ingester screens and stores listing photos.
type Ingester interface {
	Ingest(ctx context.Context, req media.IngestRequest) (*media.MediaSet, error)
}

// Details are the text fields of a listing.
type Details struct {
	Name        string
	PlateNumber string
	Capacity    int
	RatePerHour decimal.Decimal
	Description string
	Features    []string
}

// CreateInput is a new listing with its photos.
type CreateInput struct {
	Details
	Cover    *safety.Image
	Exterior []safety.Image
	Interior []safety.Image
}

// UpdateInput replaces a listing's details. Photos not named in Retained*
// are dropped; Cover, when nil, keeps the current cover.
type UpdateInput struct {
	Details
	Cover            *safety.Image
	Exterior         []safety.Image
	Interior         []safety.Image
	RetainedExterior []string
	RetainedInterior []string
}

// Service manages listings on behalf of approved operator admins.
type Service struct {
	store  store.Store
	media  Ingester
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a listing Service.
func NewService(st store.Store, ing Ingester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, media: ing, logger: logger, now: time.Now}
}

// Create validates, screens and stores a new listing for the actor's tenant.
func (s *Service) Create(ctx context.Context, actor models.Principal, in CreateInput) (*models.Listing, error) {
	tenant, err := s.approvedTenant(ctx, actor)
	if err != nil {
		return nil, err
	}
	d, err := normalize(in.Details)
	if err != nil {
		return nil, err
	}

	set, err := s.media.Ingest(ctx, media.IngestRequest{
		OwnerID:  actor.ID,
		Cover:    in.Cover,
		Exterior: in.Exterior,
		Interior: in.Interior,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.Listing{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		IsAvailable:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
		CoverPhoto:     set.Cover,
		ExteriorPhotos: set.Exterior,
		InteriorPhotos: set.Interior,
	}
	d.apply(l)
	if err := s.store.InsertListing(ctx, l); err != nil {
		return nil, s.writeError("create", l, err)
	}
	s.logger.Info("listing created", "listing_id", l.ID, "tenant_id", tenant.ID, "plate", l.PlateNumber)
	return l, nil
}

func (s *Service) Update(ctx context.Context, actor models.Principal, id uuid.UUID, in UpdateInput) (*models.Listing, error) {
	_, existing, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	d, err := normalize(in.Details)
	if err != nil {
		return nil, err
	}

	set, err := s.media.Ingest(ctx, media.IngestRequest{
		OwnerID:          actor.ID,
		Existing:         existing,
		Cover:            in.Cover,
		Exterior:         in.Exterior,
		Interior:         in.Interior,
		RetainedExterior: in.RetainedExterior,
		RetainedInterior: in.RetainedInterior,
	})
	if err != nil {
		return nil, err
	}

	l := *existing
	d.apply(&l)
	l.CoverPhoto = set.Cover
	l.ExteriorPhotos = set.Exterior
	l.InteriorPhotos = set.Interior
	l.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateListing(ctx, &l); err != nil {
		return nil, s.writeError("update", &l, err)
	}
	s.logger.Info("listing updated", "listing_id", l.ID, "tenant_id", l.TenantID)
	return &l, nil
}

func (s *Service) Delete(ctx context.Context, actor models.Principal, id uuid.UUID) error {
	tenant, _, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteListing(ctx, id, tenant.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Vehicle not found.")
		}
		return apperr.Dependency("LISTING_DELETE_FAILED", err)
	}
	s.logger.Info("listing deleted", "listing_id", id, "tenant_id", tenant.ID)
	return nil
}

func (s *Service) SetAvailability(ctx context.Context, actor models.Principal, id uuid.UUID, available bool) error {
	tenant, _, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.SetListingAvailability(ctx, id, tenant.ID, available); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Vehicle not found.")
		}
		return apperr.Dependency("LISTING_UPDATE_FAILED", err)
	}
	return nil
}

// Get returns a listing by id for public display.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	l, err := s.store.FindListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Vehicle not found.")
	}
	if err != nil {
		return nil, apperr.Dependency("LISTING_LOOKUP_FAILED", err)
	}
	return l, nil
}

// ListByTenant returns the actor's fleet, newest first.
func (s *Service) ListByTenant(ctx context.Context, actor models.Principal) ([]*models.Listing, error) {
	tenant, err := s.approvedTenant(ctx, actor)
	if err != nil {
		return nil, err
	}
	ls, err := s.store.ListListingsByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, apperr.Dependency("LISTING_LOOKUP_FAILED", err)
	}
	return ls, nil
}

func (s *Service) approvedTenant(ctx context.Context, actor models.Principal) (*models.Tenant, error) {
	if actor.Role != models.RoleOperatorAdmin {
		return nil, apperr.Forbidden("Only operator admins can manage vehicles.")
	}
	t, err := s.store.FindTenantByOwner(ctx, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Forbidden("You do not have a registered operator account.")
	}
	if err != nil {
		return nil, apperr.Dependency("TENANT_LOOKUP_FAILED", err)
	}
	if t.Status != models.TenantApproved {
		return nil, apperr.Forbidden("Your operator account has not been approved.")
	}
	return t, nil
}

// owned loads a listing and checks it belongs to the actor's tenant.
func (s *Service) owned(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.Tenant, *models.Listing, error) {
	tenant, err := s.approvedTenant(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if l.TenantID != tenant.ID {
		return nil, nil, apperr.Forbidden("This vehicle belongs to another operator.")
	}
	return tenant, l, nil
}

func (s *Service) writeError(op string, l *models.Listing, err error) error {
	if c, ok := store.ViolatedConstraint(err); ok && c == store.ConstraintPlateNumber {
		return apperr.Conflict("plate_number", "A vehicle with this plate number already exists.")
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Vehicle not found.")
	}
	s.logger.Error("listing write failed, uploaded photos are orphaned",
		"op", op, "listing_id", l.ID, "tenant_id", l.TenantID, "error", err)
	return apperr.Dependency("LISTING_SAVE_FAILED", err)
}

func normalize(d Details) (Details, error) {
	d.Name = strings.TrimSpace(d.Name)
	if len([]rune(d.Name)) < 2 {
		return d, apperr.Validation("name", "Vehicle name must be at least 2 characters.")
	}
	d.PlateNumber = NormalizePlate(d.PlateNumber)
	if len(d.PlateNumber) < 3 {
		return d, apperr.Validation("plate_number", "Plate number is required.")
	}
	if d.Capacity <= 0 {
		return d, apperr.Validation("capacity", "Capacity must be greater than zero.")
	}
	if d.RatePerHour.IsNegative() {
		return d, apperr.Validation("rate_per_hour", "Rate must not be negative.")
	}
	// rate_per_hour is NUMERIC(12,2).
	if d.RatePerHour.Exponent() < -2 && !d.RatePerHour.Equal(d.RatePerHour.Truncate(2)) {
		return d, apperr.Validation("rate_per_hour", "Rate can have at most 2 decimal places.")
	}
	if d.RatePerHour.GreaterThanOrEqual(maxRate) {
		return d, apperr.Validation("rate_per_hour", "Rate is too large.")
	}
	d.Description = strings.TrimSpace(d.Description)

	features := make([]string, 0, len(d.Features))
	seen := make(map[string]bool, len(d.Features))
	for _, f := range d.Features {
		f = strings.TrimSpace(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		features = append(features, f)
	}
	if len(features) > maxFeatures {
		return d, apperr.Validation("features", "Too many features.")
	}
	d.Features = features
	return d, nil
}

func (d Details) apply(l *models.Listing) {
	l.Name = d.Name
	l.PlateNumber = d.PlateNumber
	l.Capacity = d.Capacity
	l.RatePerHour = d.RatePerHour
	l.Description = d.Description
	l.Features = d.Features
}

// NormalizePlate upper-cases a plate and collapses internal whitespace.
func NormalizePlate(plate string) string {
	return strings.Join(strings.Fields(strings.ToUpper(plate)), " ")
}
