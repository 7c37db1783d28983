// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/fableworks/collab/pkg/capability"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteErrorMessage(w, http.StatusInternalServerError, err.Error())
}

// ErrorResponse is the standardized error body. Kind is the machine-readable
// capability error kind; clients branch on it, never on the message.
type ErrorResponse struct {
	Error string          `json:"error"`
	Kind  capability.Kind `json:"kind,omitempty"`
}

// WriteServiceError maps a capability error kind onto an HTTP status and
// writes the structured body. Non-capability errors become 500s with no
// internal detail leaked.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := capability.KindOf(err)

	status := http.StatusInternalServerError
	message := err.Error()
	switch kind {
	case capability.KindNotFound:
		status = http.StatusNotFound
	case capability.KindForbidden:
		status = http.StatusForbidden
	case capability.KindTerminal:
		status = http.StatusConflict
	case capability.KindValidationInput:
		status = http.StatusBadRequest
	case capability.KindRevoked, capability.KindExpired:
		status = http.StatusGone
	case capability.KindGenerationExhausted:
		status = http.StatusServiceUnavailable
	default:
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Kind: kind})
}

// WriteGuestDenied writes the single collapsed denial guests see for
// NotFound, Revoked, and Expired outcomes. 404 for all three so the
// response does not reveal whether the code ever existed.
func WriteGuestDenied(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusNotFound, capability.GuestDeniedMessage)
}
