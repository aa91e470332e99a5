// Package response formats the thin HTTP layer's JSON envelopes: a
// consistent success shape and an error shape that never leaks retry
// histories or internal error detail to the caller.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a display-safe message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 OK response with JSON data.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, data)
}

// Created sends a 201 Created response with JSON data.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// BadRequest sends a 400 error for a malformed or invalid request.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, "INVALID_REQUEST", message, http.StatusBadRequest)
}

// NotFound sends a 404 error naming the missing resource.
func NotFound(w http.ResponseWriter, resource string) {
	Error(w, "NOT_FOUND", resource+" not found", http.StatusNotFound)
}

// Forbidden sends a 403 error.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, "FORBIDDEN", message, http.StatusForbidden)
}

// Conflict sends a 409 error, e.g. the queue rejecting admission.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, "CONFLICT", message, http.StatusConflict)
}

// InternalError logs err server-side and sends a generic 500 body, since
// retry histories and internal error detail must never reach unprivileged
// callers.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "internal server error", "error", err)
	}
	Error(w, "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError)
}

// Error sends a generic JSON error response.
func Error(w http.ResponseWriter, code, message string, statusCode int) {
	write(w, statusCode, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func write(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}
