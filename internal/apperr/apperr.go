// Package apperr defines the error taxonomy returned across workflow boundaries.
// Every step-level failure is translated into exactly one Kind before it reaches a caller.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. It decides retryability and presentation.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindUnsafeContent  Kind = "unsafe_content"
	KindDependency     Kind = "dependency"
	KindConsistencyGap Kind = "consistency_gap"
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindUnauthorized   Kind = "unauthorized"
)

const genericRetryMessage = "Something went wrong. Please try again."

// Error is the typed error carried out of every workflow.
// Err holds the internal cause; it is logged, never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later without changes.
func (e *Error) Retryable() bool {
	return e.Kind == KindDependency
}

// Validation reports malformed caller input on a specific field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Field: field, Message: message}
}

// Conflict reports a uniqueness violation on a specific field.
func Conflict(field, message string) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Field: field, Message: message}
}

// Unsafe reports content rejected by the safety gate. Only the category is exposed.
func Unsafe(category string) *Error {
	return &Error{
		Kind:    KindUnsafeContent,
		Code:    "UNSAFE_CONTENT",
		Field:   category,
		Message: fmt.Sprintf("One or more images were rejected for %s content.", category),
	}
}

// Dependency reports an external service failure or timeout. The message is generic.
func Dependency(code string, err error) *Error {
	return &Error{Kind: KindDependency, Code: code, Message: genericRetryMessage, Err: err}
}

// ConsistencyGap reports a failed compensation or a half-applied multi-store write.
// It must be logged for manual reconciliation.
func ConsistencyGap(code, message string, err error) *Error {
	return &Error{Kind: KindConsistencyGap, Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

// WithCode returns a copy of e with a more specific code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err. Untyped errors count as dependency failures,
// so an unexpected cause is never presented as the caller's fault.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindDependency
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
