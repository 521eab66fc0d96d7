package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tagshelf/internal/apperr"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string      `json:"error"`
	Code    apperr.Code `json:"code,omitempty"`
	Details any         `json:"details,omitempty"`
}

// writeError maps a domain error to its HTTP status. Server-side failures
// are logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Persistence(err, "internal error")
	}
	status := ae.HTTPStatus()
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Code: ae.Code})
		return
	}
	writeJSON(w, status, errResponse{Error: ae.Message, Code: ae.Code, Details: ae.Details})
}

// decodeJSON reads a JSON body into dst and runs its ozzo rules when dst
// implements validation.Validatable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Code: apperr.CodeValidation})
		return false
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{
				Error:   "invalid request",
				Code:    apperr.CodeValidation,
				Details: err,
			})
			return false
		}
	}
	return true
}
