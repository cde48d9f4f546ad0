package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/blob"
	"github.com/fleetgate/fleetgate/internal/listing"
	"github.com/fleetgate/fleetgate/internal/safety"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fleet is the listing surface the handlers depend on.
type Fleet interface {
	Create(ctx context.Context, actor models.Principal, in listing.CreateInput) (*models.Listing, error)
	Update(ctx context.Context, actor models.Principal, id uuid.UUID, in listing.UpdateInput) (*models.Listing, error)
	Delete(ctx context.Context, actor models.Principal, id uuid.UUID) error
	SetAvailability(ctx context.Context, actor models.Principal, id uuid.UUID, available bool) error
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListByTenant(ctx context.Context, actor models.Principal) ([]*models.Listing, error)
}

// Listings serves the fleet and public listing routes.
type Listings struct {
	svc            Fleet
	photos         blob.Store
	maxUploadBytes int64
}

// NewListings creates the listing handlers. photos resolves public URLs.
func NewListings(svc Fleet, photos blob.Store, maxUploadBytes int64) *Listings {
	return &Listings{svc: svc, photos: photos, maxUploadBytes: maxUploadBytes}
}

type listingView struct {
	*models.Listing
	CoverURL     string   `json:"cover_url"`
	ExteriorURLs []string `json:"exterior_urls"`
	InteriorURLs []string `json:"interior_urls"`
}

func (h *Listings) view(l *models.Listing) listingView {
	urls := func(refs []string) []string {
		out := make([]string, len(refs))
		for i, ref := range refs {
			out[i] = h.photos.PublicURL(blob.Ref(ref))
		}
		return out
	}
	v := listingView{Listing: l, ExteriorURLs: urls(l.ExteriorPhotos), InteriorURLs: urls(l.InteriorPhotos)}
	if l.CoverPhoto != "" {
		v.CoverURL = h.photos.PublicURL(blob.Ref(l.CoverPhoto))
	}
	return v
}

// List handles GET /api/v1/fleet/listings.
func (h *Listings) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	ls, err := h.svc.ListByTenant(r.Context(), p)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	out := make([]listingView, len(ls))
	for i, l := range ls {
		out[i] = h.view(l)
	}
	response.JSON(w, out)
}

// Create handles the multipart POST /api/v1/fleet/listings.
func (h *Listings) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := parseMultipart(w, r, h.maxUploadBytes); err != nil {
		response.Fail(w, r, err)
		return
	}
	d, err := parseDetails(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	cover, exterior, interior, err := parsePhotos(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	l, err := h.svc.Create(r.Context(), p, listing.CreateInput{Details: d, Cover: cover, Exterior: exterior, Interior: interior})
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Created(w, h.view(l))
}

// Update handles the multipart PUT /api/v1/fleet/listings/{listingID}.
// retained_exterior and retained_interior name the existing photos to keep.
func (h *Listings) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "listingID")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := parseMultipart(w, r, h.maxUploadBytes); err != nil {
		response.Fail(w, r, err)
		return
	}
	d, err := parseDetails(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	cover, exterior, interior, err := parsePhotos(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	l, err := h.svc.Update(r.Context(), p, id, listing.UpdateInput{
		Details:          d,
		Cover:            cover,
		Exterior:         exterior,
		Interior:         interior,
		RetainedExterior: formValues(r, "retained_exterior"),
		RetainedInterior: formValues(r, "retained_interior"),
	})
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, h.view(l))
}

// SetAvailability handles PATCH /api/v1/fleet/listings/{listingID}/availability.
func (h *Listings) SetAvailability(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "listingID")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req struct {
		Available *bool `json:"is_available"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.Fail(w, r, err)
		return
	}
	if req.Available == nil {
		response.Fail(w, r, apperr.Validation("is_available", "is_available is required."))
		return
	}
	if err := h.svc.SetAvailability(r.Context(), p, id, *req.Available); err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, map[string]any{"id": id, "is_available": *req.Available})
}

// Delete handles DELETE /api/v1/fleet/listings/{listingID}.
func (h *Listings) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	id, err := uuidParam(r, "listingID")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), p, id); err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, map[string]any{"id": id, "deleted": true})
}

// Get handles the public GET /api/v1/listings/{listingID}.
func (h *Listings) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "listingID")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	l, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, h.view(l))
}

func parseDetails(r *http.Request) (listing.Details, error) {
	d := listing.Details{
		Name:        formValue(r, "name"),
		PlateNumber: formValue(r, "plate_number"),
		Description: formValue(r, "description"),
	}

	capacity, err := strconv.Atoi(formValue(r, "capacity"))
	if err != nil {
		return d, apperr.Validation("capacity", "Capacity must be a whole number.")
	}
	d.Capacity = capacity

	rate := formValue(r, "rate_per_hour")
	if rate == "" {
		rate = "0"
	}
	d.RatePerHour, err = decimal.NewFromString(rate)
	if err != nil {
		return d, apperr.Validation("rate_per_hour", "Rate must be a number.")
	}

	// features is either a JSON array or repeated form fields.
	raw := formValues(r, "features")
	if len(raw) == 1 && strings.HasPrefix(raw[0], "[") {
		if err := json.Unmarshal([]byte(raw[0]), &d.Features); err != nil {
			return d, apperr.Validation("features", "Features must be a JSON array of strings.")
		}
	} else {
		d.Features = raw
	}
	return d, nil
}

func parsePhotos(r *http.Request) (*safety.Image, []safety.Image, []safety.Image, error) {
	var cover *safety.Image
	c, err := formFile(r, "cover_photo")
	if err != nil {
		return nil, nil, nil, err
	}
	if c != nil {
		img := c.image()
		cover = &img
	}
	exterior, err := images(r, "exterior_photos")
	if err != nil {
		return nil, nil, nil, err
	}
	interior, err := images(r, "interior_photos")
	if err != nil {
		return nil, nil, nil, err
	}
	return cover, exterior, interior, nil
}

func images(r *http.Request, key string) ([]safety.Image, error) {
	files, err := formFiles(r, key)
	if err != nil {
		return nil, err
	}
	out := make([]safety.Image, len(files))
	for i, f := range files {
		out[i] = f.image()
	}
	return out, nil
}
