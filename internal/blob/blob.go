// Package blob stores uploaded files in an object storage bucket.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrUnavailable = errors.New("blob store unavailable")
	ErrTimeout     = errors.New("blob store timeout")
	ErrExists      = errors.New("blob already exists")
	ErrRejected    = errors.New("blob store rejected upload")
)

// Ref is an object key within a bucket, e.g. "{owner}/covers/{name}.jpg".
type Ref string

// Store writes objects to a single bucket.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (Ref, error)
	PublicURL(ref Ref) string
}

// HTTPStore talks to a Supabase-compatible storage API.
type HTTPStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

// validPath rejects empty and absolute paths and any "." or ".." segment.
func validPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// NewHTTPStore creates a Store that writes to bucket on the storage API at baseURL.
func NewHTTPStore(baseURL, serviceKey, bucket string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		client:     &http.Client{Timeout: timeout},
	}
}

// Put uploads data under path without overwriting an existing object.
func (s *HTTPStore) Put(ctx context.Context, path string, data []byte, contentType string) (Ref, error) {
	if !validPath(path) {
		return "", fmt.Errorf("%w: invalid path %q", ErrRejected, path)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	u := fmt.Sprintf("%s/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return Ref(path), nil
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
}

// PublicURL returns the world-readable URL of ref.
func (s *HTTPStore) PublicURL(ref Ref) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapePath(string(ref)))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

var _ Store = (*HTTPStore)(nil)
