package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetgate/fleetgate/internal/blob"
)

// Store satisfies blob.Store for testing and records every object written.
type Store struct {
	// PutFunc, when set, replaces the default in-memory write.
	PutFunc func(ctx context.Context, path string, data []byte, contentType string) (blob.Ref, error)

	mu      sync.Mutex
	objects map[string][]byte
	calls   int
}

// NewStore creates an empty in-memory blob store.
func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// NewFailingStore returns a Store whose every Put fails with err.
func NewFailingStore(err error) *Store {
	s := NewStore()
	s.PutFunc = func(_ context.Context, _ string, _ []byte, _ string) (blob.Ref, error) {
		return "", err
	}
	return s
}

func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) (blob.Ref, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.PutFunc != nil {
		return s.PutFunc(ctx, path, data, contentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; ok {
		return "", fmt.Errorf("%w: %s", blob.ErrExists, path)
	}
	s.objects[path] = append([]byte(nil), data...)
	return blob.Ref(path), nil
}

func (s *Store) PublicURL(ref blob.Ref) string {
	return "https://blobs.test/" + string(ref)
}

// Calls returns how many times Put was invoked.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Paths returns the stored object keys in sorted order.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Object returns the bytes stored at path.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

var _ blob.Store = (*Store)(nil)
