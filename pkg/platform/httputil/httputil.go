// Package httputil holds the JSON response helpers shared by all handlers.
// Error payloads expose the domain error code and, except for internal
// errors, the message; internal details never leave the process.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "remedia/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeInvalidTransition:
		return http.StatusConflict
	case dErrors.CodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError maps a domain error to its HTTP status and JSON body. Errors
// without a domain code are treated as internal.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	status := statusFor(code)

	body := errorBody{Error: string(code)}
	if status != http.StatusInternalServerError {
		body.ErrorDescription = err.Error()
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Details = de.Details
		}
	}
	WriteJSON(w, status, body)
}

// Decode parses the request body into T and writes a validation error on
// malformed JSON. The boolean reports whether decoding succeeded.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "malformed request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeValidation, "malformed request body"))
		var zero T
		return zero, false
	}
	return req, true
}
