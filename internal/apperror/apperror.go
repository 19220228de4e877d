// Package apperror defines the errors the service layer reports to handlers.
//
// Handlers never inspect error strings. They match the sentinel with
// errors.Is (ErrNotFound → 404, ErrValidation → 400) and
// read the human-readable parts from *AppError with errors.As.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type AppError struct {
	Err     error        // sentinel the error matches
	Message string       // human-readable error message
	Field   string       // optional: field causing the error
	Details []FieldError // optional: every invalid field, for validation errors
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource: NotFound("code") reads "Code not found".
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", capitalize(resource)),
	}
}

// ValidationFailed reports a single invalid field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Details: []FieldError{{Field: field, Message: message}},
	}
}

// Invalid collects several field errors into one. It returns nil when
// details is empty, so callers can validate everything and then
// `return apperror.Invalid(errs)` unconditionally. The result is an error
// interface so that an empty collection is a true nil.
func Invalid(details []FieldError) error {
	if len(details) == 0 {
		return nil
	}
	return &AppError{
		Err:     ErrValidation,
		Message: details[0].Message,
		Field:   details[0].Field,
		Details: details,
	}
}

// FieldErrors returns the field errors carried by err, if any.
func FieldErrors(err error) []FieldError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
