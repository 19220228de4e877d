package handler

// Response helpers keep every endpoint on the same JSON shapes:
//
//	success:    {"success": true,  "message": "...", "data": ...}
//	not found:  {"success": false, "message": "Code not found", "data": null}
//	validation: {"success": false, "error": "Validation failed", "details": [{"field", "message"}]}
//	failure:    {"success": false, "message": "Failed to ...", "data": null}
//
// Handlers never build status codes from error strings; writeError maps the
// apperror sentinels.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/code-runner/internal/apperror"
)

// Envelope is the standard response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationResponse lists every invalid field of a request.
type ValidationResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error"`
	Details []apperror.FieldError `json:"details"`
}

// ErrorResponse is a bare failure without data.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON sets the headers, then the status, then encodes the body.
// Headers cannot change once the body has started.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The status line is already out; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeOK sends a successful envelope. An empty message reads
// "Operation successful".
func writeOK(w http.ResponseWriter, status int, message string, data any) {
	if message == "" {
		message = "Operation successful"
	}
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// writeError maps a service error to a response. failMessage describes the
// operation for unexpected errors ("Failed to fetch codes"); the raw error is
// logged but never sent, since it can carry SQL or file paths.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, failMessage string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		details := apperror.FieldErrors(err)
		if details == nil {
			details = []apperror.FieldError{}
		}
		writeJSON(w, http.StatusBadRequest, ValidationResponse{
			Error:   "Validation failed",
			Details: details,
		})

	case errors.Is(err, apperror.ErrNotFound):
		message := "Not found"
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
		writeJSON(w, http.StatusNotFound, Envelope{Message: message})

	default:
		logger.Error(failMessage, slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Envelope{Message: failMessage})
	}
}

// decodeJSON reads a single JSON value from the request body. A body over
// the server's size limit fails here as well.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		status := http.StatusBadRequest
		message := "Invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			message = "Request body too large"
		}
		writeJSON(w, status, ErrorResponse{Error: message})
		return false
	}
	return true
}
