package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"moviments/internal/batch"
	"moviments/internal/core"
	"moviments/internal/ledger"
	applog "moviments/internal/log"
	"moviments/internal/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the body of every JSON response.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Status: statusError, Message: message})
}

var validationErrors = []error{
	core.ErrUnknownKind,
	core.ErrInvalidAmount,
	core.ErrInvalidDate,
	core.ErrEmptyName,
	batch.ErrUnreadable,
	batch.ErrMissingColumns,
}

// statusFor maps err to a response code. fallback is used for errors with
// no mapping, typically 502 for store calls.
func statusFor(err error, fallback int) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		return http.StatusServiceUnavailable, applog.ErrorTypeConfiguration
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, batch.ErrRowNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.Is(err, batch.ErrRowMismatch):
		return http.StatusConflict, applog.ErrorTypeConflict
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest, applog.ErrorTypeValidation
		}
	}
	if fallback == http.StatusBadGateway {
		return fallback, applog.ErrorTypeUpstream
	}
	return fallback, applog.ErrorTypeInternal
}

// fail logs err and writes its mapped status. Client errors log at warn.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, fallback int) {
	code, errType := statusFor(err, fallback)
	logger := applog.FromContext(r.Context())
	args := []any{"error", err, applog.FieldErrorType, errType, applog.FieldOperation, op, applog.FieldStatusCode, code}
	if code < http.StatusInternalServerError {
		logger.WarnContext(r.Context(), "Request rejected", args...)
	} else {
		logger.ErrorContext(r.Context(), "Request failed", args...)
	}
	writeFailure(w, code, err.Error())
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
