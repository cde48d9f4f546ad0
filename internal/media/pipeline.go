// Package media screens and stores listing photos.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"slices"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/blob"
	"github.com/fleetgate/fleetgate/internal/safety"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var errSafetyUnavailable = errors.New("safety check unavailable")

// Limits caps photo counts per category and bytes per image.
type Limits struct {
	MaxExterior   int
	MaxInterior   int
	MaxImageBytes int64
	// MaxParallelUploads bounds concurrent blob writes. Zero means 4.
	MaxParallelUploads int
}

// IngestRequest is one create or edit of a listing's photos. Existing is
// nil on create. Retained refs must already belong to Existing.
type IngestRequest struct {
	OwnerID          uuid.UUID
	Existing         *models.Listing
	Cover            *safety.Image
	Exterior         []safety.Image
	Interior         []safety.Image
	RetainedExterior []string
	RetainedInterior []string
}

// MediaSet is the final photo references for a listing.
type MediaSet struct {
	Cover    string
	Exterior []string
	Interior []string
}

// Pipeline validates, screens and uploads listing photos. Nothing is
// uploaded unless every new image passes the safety gate.
type Pipeline struct {
	gate   *safety.Gate
	blobs  blob.Store
	limits Limits
	logger *slog.Logger
}

// NewPipeline creates a Pipeline that screens with gate and stores into blobs.
func NewPipeline(gate *safety.Gate, blobs blob.Store, limits Limits, logger *slog.Logger) *Pipeline {
	if limits.MaxParallelUploads <= 0 {
		limits.MaxParallelUploads = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gate: gate, blobs: blobs, limits: limits, logger: logger}
}

type pending struct {
	img    safety.Image
	folder Folder
	ext    string
	ref    string
}

// Ingest returns the photo set to persist. Uploaded blobs are not removed if
// the caller's later database write fails.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*MediaSet, error) {
	if req.Cover == nil && (req.Existing == nil || req.Existing.CoverPhoto == "") {
		return nil, apperr.Validation("cover_photo", "A cover photo is required.")
	}

	retainedExt, err := retained("exterior_photos", req.RetainedExterior, req.Existing, func(l *models.Listing) []string { return l.ExteriorPhotos })
	if err != nil {
		return nil, err
	}
	retainedInt, err := retained("interior_photos", req.RetainedInterior, req.Existing, func(l *models.Listing) []string { return l.InteriorPhotos })
	if err != nil {
		return nil, err
	}
	if n := len(retainedExt) + len(req.Exterior); n > p.limits.MaxExterior {
		return nil, apperr.Validation("exterior_photos",
			fmt.Sprintf("At most %d exterior photos are allowed.", p.limits.MaxExterior))
	}
	if n := len(retainedInt) + len(req.Interior); n > p.limits.MaxInterior {
		return nil, apperr.Validation("interior_photos",
			fmt.Sprintf("At most %d interior photos are allowed.", p.limits.MaxInterior))
	}

	var batch []*pending
	if req.Cover != nil {
		pc, err := p.prepare("cover_photo", *req.Cover, FolderCovers)
		if err != nil {
			return nil, err
		}
		batch = append(batch, pc)
	}
	for _, group := range []struct {
		field  string
		folder Folder
		images []safety.Image
	}{
		{"exterior_photos", FolderExterior, req.Exterior},
		{"interior_photos", FolderInterior, req.Interior},
	} {
		for _, img := range group.images {
			pi, err := p.prepare(group.field, img, group.folder)
			if err != nil {
				return nil, err
			}
			batch = append(batch, pi)
		}
	}

	images := make([]safety.Image, len(batch))
	for i, b := range batch {
		images[i] = b.img
	}
	verdict := p.gate.ClassifyBatch(ctx, images)
	if !verdict.Accepted() {
		if verdict.Reason() == safety.CategoryUnavailable {
			return nil, apperr.Dependency("SAFETY_CHECK_UNAVAILABLE", errSafetyUnavailable)
		}
		return nil, apperr.Unsafe(string(verdict.Reason()))
	}

	if err := p.upload(ctx, req.OwnerID, batch); err != nil {
		return nil, apperr.Dependency("IMAGE_UPLOAD_FAILED", err)
	}

	set := &MediaSet{Exterior: retainedExt, Interior: retainedInt}
	if req.Existing != nil {
		set.Cover = req.Existing.CoverPhoto
	}
	for _, b := range batch {
		switch b.folder {
		case FolderCovers:
			set.Cover = b.ref
		case FolderExterior:
			set.Exterior = appendUnique(set.Exterior, b.ref)
		case FolderInterior:
			set.Interior = appendUnique(set.Interior, b.ref)
		}
	}
	if set.Exterior == nil {
		set.Exterior = []string{}
	}
	if set.Interior == nil {
		set.Interior = []string{}
	}
	return set, nil
}

func (p *Pipeline) prepare(field string, img safety.Image, folder Folder) (*pending, error) {
	if len(img.Data) == 0 {
		return nil, apperr.Validation(field, fmt.Sprintf("Image %q is empty.", img.Name))
	}
	if p.limits.MaxImageBytes > 0 && int64(len(img.Data)) > p.limits.MaxImageBytes {
		return nil, apperr.Validation(field, fmt.Sprintf("Image %q exceeds %d bytes.", img.Name, p.limits.MaxImageBytes))
	}
	ct := img.ContentType
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if _, ok := extensionFor(ct); !ok {
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(img.Data))
	}
	ext, ok := extensionFor(ct)
	if !ok {
		return nil, apperr.Validation(field, fmt.Sprintf("Image %q must be JPEG, PNG, WebP or GIF.", img.Name))
	}
	img.ContentType = ct
	return &pending{img: img, folder: folder, ext: ext}, nil
}

func (p *Pipeline) upload(ctx context.Context, owner uuid.UUID, batch []*pending) error {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(p.limits.MaxParallelUploads)
	for _, b := range batch {
		eg.Go(func() error {
			ref, err := p.blobs.Put(ectx, ObjectPath(owner, b.folder, b.ext), b.img.Data, b.img.ContentType)
			if err != nil {
				p.logger.Error("image upload failed", "owner_id", owner, "image", b.img.Name, "error", err)
				return err
			}
			b.ref = string(ref)
			return nil
		})
	}
	return eg.Wait()
}

// retained deduplicates keep and checks every ref is already on existing.
func retained(field string, keep []string, existing *models.Listing, current func(*models.Listing) []string) ([]string, error) {
	if len(keep) == 0 {
		return []string{}, nil
	}
	if existing == nil {
		return nil, apperr.Validation(field, "Retained photos require an existing listing.")
	}
	have := current(existing)
	out := make([]string, 0, len(keep))
	for _, ref := range keep {
		if !slices.Contains(have, ref) {
			return nil, apperr.Validation(field, "Retained photo does not belong to this listing.")
		}
		out = appendUnique(out, ref)
	}
	return out, nil
}

func appendUnique(list []string, ref string) []string {
	if slices.Contains(list, ref) {
		return list
	}
	return append(list, ref)
}
