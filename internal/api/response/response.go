package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fleetgate/fleetgate/internal/apperr"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Status: statusSuccess, Data: data})
}

// Error writes a transport-level failure that has no domain kind, such as a
// malformed body or an exceeded rate limit.
func Error(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		Status:  statusError,
		Kind:    kindForStatus(status),
		Code:    code,
		Message: message,
	})
}

// ErrorDetails is Error with a machine-readable details payload.
func ErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{
		Status:  statusError,
		Kind:    kindForStatus(status),
		Code:    code,
		Message: message,
		Details: details,
	})
}

// Fail renders err by its apperr kind. Internal causes are logged, never written.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Dependency("INTERNAL_ERROR", err)
	}
	status := StatusFor(ae.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "kind", ae.Kind, "code", ae.Code, "error", ae.Err)
	}
	writeJSON(w, status, errorEnvelope{
		Status:  statusError,
		Kind:    string(ae.Kind),
		Code:    ae.Code,
		Message: ae.Message,
		Field:   ae.Field,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnsafeContent:
		return http.StatusUnprocessableEntity
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized:
		return string(apperr.KindUnauthorized)
	case http.StatusForbidden:
		return string(apperr.KindForbidden)
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return string(apperr.KindDependency)
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
