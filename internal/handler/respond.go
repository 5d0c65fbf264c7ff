package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/johndosdos/paychat/internal/apperr"
)

// Response is the envelope of every JSON response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}

func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

// errorStatus maps an error kind to its HTTP status, code and client
// message.
func errorStatus(err error) (int, string, string) {
	switch apperr.Kind(err) {
	case apperr.ErrInvalid:
		return http.StatusBadRequest, "bad_request", err.Error()
	case apperr.ErrExpired:
		return http.StatusUnauthorized, "session_expired", "Session expired. Log in again."
	case apperr.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized", "Invalid credentials."
	case apperr.ErrForbidden:
		return http.StatusForbidden, "forbidden", "Forbidden."
	case apperr.ErrNotFound:
		return http.StatusNotFound, "not_found", "Not found."
	case apperr.ErrConflict:
		return http.StatusConflict, "conflict", "Already exists."
	default:
		return http.StatusInternalServerError, "internal_error", "Server error."
	}
}

// WriteError writes err in the error envelope. Errors that do not map to a
// client-facing kind are logged and reported as 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	WriteErrorCode(w, status, code, msg)
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", apperr.ErrInvalid, err)
	}
	return nil
}
