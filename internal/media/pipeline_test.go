package media_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/fleetgate/fleetgate/internal/apperr"
	blobmock "github.com/fleetgate/fleetgate/internal/blob/mock"
	"github.com/fleetgate/fleetgate/internal/media"
	"github.com/fleetgate/fleetgate/internal/safety"
	safetymock "github.com/fleetgate/fleetgate/internal/safety/mock"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var limits = media.Limits{MaxExterior: 4, MaxInterior: 4, MaxImageBytes: 1 << 20}

func jpeg(name string) safety.Image {
	return safety.Image{Name: name, ContentType: "image/jpeg", Data: []byte(name)}
}

func jpegs(names ...string) []safety.Image {
	out := make([]safety.Image, len(names))
	for i, n := range names {
		out[i] = jpeg(n)
	}
	return out
}

func newPipeline(c safety.Classifier, blobs *blobmock.Store) *media.Pipeline {
	gate := safety.NewGate(c, safety.GateOptions{MaxConcurrency: 4})
	return media.NewPipeline(gate, blobs, limits, nil)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %T", err)
	require.Equal(t, kind, ae.Kind)
	return ae
}

func TestIngest_CreateUploadsEverything(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	owner := uuid.New()
	cover := jpeg("cover")

	set, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:  owner,
		Cover:    &cover,
		Exterior: jpegs("ext1", "ext2"),
		Interior: jpegs("int1"),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^`+owner.String()+`/covers/[0-9A-Z]{26}\.jpg$`), set.Cover)
	require.Len(t, set.Exterior, 2)
	require.Len(t, set.Interior, 1)
	for _, ref := range set.Exterior {
		assert.True(t, strings.HasPrefix(ref, owner.String()+"/exterior/"))
	}
	assert.True(t, strings.HasPrefix(set.Interior[0], owner.String()+"/interior/"))
	assert.Len(t, blobs.Paths(), 4)

	data, ok := blobs.Object(set.Cover)
	require.True(t, ok)
	assert.Equal(t, []byte("cover"), data)
}

func TestIngest_UnsafeImageUploadsNothing(t *testing.T) {
	blobs := blobmock.NewStore()
	classifier := safetymock.NewContentClassifier(map[string]safety.Scores{
		"ext2": {Adult: safety.VeryLikely},
	})
	p := newPipeline(classifier, blobs)
	cover := jpeg("cover")

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:  uuid.New(),
		Cover:    &cover,
		Exterior: jpegs("ext1", "ext2"),
	})
	ae := requireKind(t, err, apperr.KindUnsafeContent)
	assert.Equal(t, "adult", ae.Field)
	assert.Contains(t, ae.Message, "adult")
	assert.Equal(t, 0, blobs.Calls())
	assert.Equal(t, 3, classifier.Calls())
}

func TestIngest_ClassifierDownUploadsNothing(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewFailingClassifier(safety.ErrClassifierUnavailable), blobs)
	cover := jpeg("cover")

	_, err := p.Ingest(context.Background(), media.IngestRequest{OwnerID: uuid.New(), Cover: &cover})
	ae := requireKind(t, err, apperr.KindDependency)
	assert.Equal(t, "SAFETY_CHECK_UNAVAILABLE", ae.Code)
	assert.NotContains(t, ae.Message, "unavailable")
	assert.Equal(t, 0, blobs.Calls())
}

func TestIngest_MissingCoverOnCreate(t *testing.T) {
	blobs := blobmock.NewStore()
	classifier := safetymock.NewSafeClassifier()
	p := newPipeline(classifier, blobs)

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:  uuid.New(),
		Exterior: jpegs("ext1"),
	})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "cover_photo", ae.Field)
	assert.Equal(t, 0, blobs.Calls())
	assert.Equal(t, 0, classifier.Calls())
}

func TestIngest_EditKeepsExistingCover(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	existing := &models.Listing{CoverPhoto: "o/covers/old.jpg"}

	set, err := p.Ingest(context.Background(), media.IngestRequest{OwnerID: uuid.New(), Existing: existing})
	require.NoError(t, err)
	assert.Equal(t, "o/covers/old.jpg", set.Cover)
	assert.Empty(t, set.Exterior)
	assert.Equal(t, 0, blobs.Calls())
}

func TestIngest_RetainAndAdd(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	existing := &models.Listing{
		CoverPhoto:     "o/covers/cover.jpg",
		ExteriorPhotos: []string{"o/exterior/A.jpg", "o/exterior/B.jpg"},
	}

	set, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:          uuid.New(),
		Existing:         existing,
		RetainedExterior: []string{"o/exterior/A.jpg"},
		Exterior:         jpegs("C"),
	})
	require.NoError(t, err)
	require.Len(t, set.Exterior, 2)
	assert.Equal(t, "o/exterior/A.jpg", set.Exterior[0])
	assert.NotEqual(t, "o/exterior/B.jpg", set.Exterior[1])
	assert.Contains(t, set.Exterior[1], "/exterior/")
	assert.Equal(t, "o/covers/cover.jpg", set.Cover)
}

func TestIngest_RetainedDuplicatesCollapse(t *testing.T) {
	p := newPipeline(safetymock.NewSafeClassifier(), blobmock.NewStore())
	existing := &models.Listing{CoverPhoto: "c", InteriorPhotos: []string{"i1"}}

	set, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:          uuid.New(),
		Existing:         existing,
		RetainedInterior: []string{"i1", "i1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, set.Interior)
}

func TestIngest_RetainedForeignRefRejected(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	existing := &models.Listing{CoverPhoto: "c", ExteriorPhotos: []string{"mine.jpg"}}

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:          uuid.New(),
		Existing:         existing,
		RetainedExterior: []string{"someone-elses.jpg"},
	})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "exterior_photos", ae.Field)
	assert.Equal(t, 0, blobs.Calls())
}

func TestIngest_RetainedWithoutExistingRejected(t *testing.T) {
	cover := jpeg("cover")
	p := newPipeline(safetymock.NewSafeClassifier(), blobmock.NewStore())

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:          uuid.New(),
		Cover:            &cover,
		RetainedExterior: []string{"x.jpg"},
	})
	requireKind(t, err, apperr.KindValidation)
}

func TestIngest_CountCapCheckedBeforeClassification(t *testing.T) {
	blobs := blobmock.NewStore()
	classifier := safetymock.NewSafeClassifier()
	p := newPipeline(classifier, blobs)
	existing := &models.Listing{
		CoverPhoto:     "c",
		ExteriorPhotos: []string{"a", "b", "c"},
	}

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:          uuid.New(),
		Existing:         existing,
		RetainedExterior: []string{"a", "b", "c"},
		Exterior:         jpegs("d", "e"),
	})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "exterior_photos", ae.Field)
	assert.Equal(t, 0, classifier.Calls())
	assert.Equal(t, 0, blobs.Calls())
}

func TestIngest_InteriorCap(t *testing.T) {
	cover := jpeg("cover")
	p := newPipeline(safetymock.NewSafeClassifier(), blobmock.NewStore())

	_, err := p.Ingest(context.Background(), media.IngestRequest{
		OwnerID:  uuid.New(),
		Cover:    &cover,
		Interior: jpegs("1", "2", "3", "4", "5"),
	})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "interior_photos", ae.Field)
}

func TestIngest_InvalidImages(t *testing.T) {
	tests := []struct {
		name string
		img  safety.Image
	}{
		{"empty", safety.Image{Name: "e.jpg", ContentType: "image/jpeg"}},
		{"too large", safety.Image{Name: "big.jpg", ContentType: "image/jpeg", Data: make([]byte, 2<<20)}},
		{"not an image", safety.Image{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := safetymock.NewSafeClassifier()
			p := newPipeline(classifier, blobmock.NewStore())
			img := tt.img
			_, err := p.Ingest(context.Background(), media.IngestRequest{OwnerID: uuid.New(), Cover: &img})
			ae := requireKind(t, err, apperr.KindValidation)
			assert.Equal(t, "cover_photo", ae.Field)
			assert.Equal(t, 0, classifier.Calls())
		})
	}
}

func TestIngest_ContentTypeSniffedWhenMissing(t *testing.T) {
	blobs := blobmock.NewStore()
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	png := safety.Image{Name: "x", Data: []byte("\x89PNG\r\n\x1a\n0000")}

	set, err := p.Ingest(context.Background(), media.IngestRequest{OwnerID: uuid.New(), Cover: &png})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(set.Cover, ".png"))
}

func TestIngest_UploadFailureIsDependency(t *testing.T) {
	blobs := blobmock.NewFailingStore(errors.New("bucket down"))
	p := newPipeline(safetymock.NewSafeClassifier(), blobs)
	cover := jpeg("cover")

	_, err := p.Ingest(context.Background(), media.IngestRequest{OwnerID: uuid.New(), Cover: &cover})
	ae := requireKind(t, err, apperr.KindDependency)
	assert.Equal(t, "IMAGE_UPLOAD_FAILED", ae.Code)
	assert.Equal(t, "Something went wrong. Please try again.", ae.Message)
}

func TestObjectPath_Unique(t *testing.T) {
	owner := uuid.New()
	seen := map[string]bool{}
	for range 1000 {
		p := media.ObjectPath(owner, media.FolderExterior, "jpg")
		require.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}
