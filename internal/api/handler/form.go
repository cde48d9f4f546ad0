// Package handler adapts HTTP requests to the fleetgate workflows.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/safety"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxMemory is the in-memory share of a multipart body; the rest spills to disk.
const maxMemory = 8 << 20

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (u upload) image() safety.Image {
	return safety.Image{Name: u.name, ContentType: u.contentType, Data: u.data}
}

func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("body", fmt.Sprintf("Upload exceeds %d bytes.", tooLarge.Limit))
		}
		return apperr.Validation("body", "Expected a multipart/form-data body.")
	}
	return nil
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

// formValues returns every non-blank value of key.
func formValues(r *http.Request, key string) []string {
	if r.MultipartForm == nil {
		return nil
	}
	var out []string
	for _, v := range r.MultipartForm.Value[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// formFiles reads every file part named key. Zero-length parts, which
// browsers send for an untouched file input, are skipped.
func formFiles(r *http.Request, key string) ([]upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []upload
	for _, fh := range r.MultipartForm.File[key] {
		if fh.Size == 0 {
			continue
		}
		u, err := readPart(fh)
		if err != nil {
			return nil, apperr.Validation(key, fmt.Sprintf("Could not read %q.", fh.Filename))
		}
		out = append(out, u)
	}
	return out, nil
}

func formFile(r *http.Request, key string) (*upload, error) {
	files, err := formFiles(r, key)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return &files[0], nil
}

func readPart(fh *multipart.FileHeader) (upload, error) {
	f, err := fh.Open()
	if err != nil {
		return upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, err
	}
	return upload{name: fh.Filename, contentType: fh.Header.Get("Content-Type"), data: data}, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("body", "Invalid JSON body.")
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(fmt.Sprintf("Unknown %s.", name))
	}
	return id, nil
}
