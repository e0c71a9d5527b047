// Package api defines the HTTP wire format: response envelopes, the
// request and response DTOs, and the mapping from domain errors to
// status codes.
package api

import (
	"encoding/json"
	"net/http"

	pkgerrors "loom-backend/pkg/errors"
)

// Success sends a JSON response with the given status code. A nil data
// value writes headers only.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends an error response with a consistent JSON envelope.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    statusCode,
	})
}

// RespondError translates a domain error into its HTTP status and sends
// the standard error envelope.
func RespondError(w http.ResponseWriter, err error) {
	Error(w, StatusForError(err), err.Error())
}

// StatusForError maps domain error kinds to HTTP status codes
func StatusForError(err error) int {
	return pkgerrors.HTTPStatus(err)
}
