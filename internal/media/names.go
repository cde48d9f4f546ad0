package media

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Folder is the per-category directory under an owner's prefix.
type Folder string

const (
	FolderCovers   Folder = "covers"
	FolderExterior Folder = "exterior"
	FolderInterior Folder = "interior"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newName returns a lexicographically sortable, collision-resistant name:
// a millisecond timestamp followed by 80 random bits.
func newName() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ObjectPath builds "{owner}/{folder}/{ulid}.{ext}".
func ObjectPath(owner uuid.UUID, folder Folder, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", owner, folder, newName(), ext)
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// extensionFor returns the file extension for a supported image content type.
func extensionFor(contentType string) (string, bool) {
	ext, ok := extensions[contentType]
	return ext, ok
}
