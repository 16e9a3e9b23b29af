// Package api exposes the rule engine over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ─── Response envelope ────────────────────────────────────────────────────────

// envelope wraps every JSON response. Exactly one of Data and Error is set.
type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in apiError.Code.
const (
	codeInvalidParam       = "INVALID_PARAM"
	codeInvalidBody        = "INVALID_BODY"
	codeInvalidTransaction = "INVALID_TRANSACTION"
	codeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
	codeBatchTooLarge      = "BATCH_TOO_LARGE"
	codeInternal           = "INTERNAL_ERROR"
)

// ─── Writers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Status is already on the wire.
		slog.Warn("api: encode response", "error", err)
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

// failInternal hides err from the client and logs it instead.
func failInternal(w http.ResponseWriter, err error) {
	slog.Error("api: internal error", "error", err)
	fail(w, http.StatusInternalServerError, codeInternal, "an unexpected error occurred")
}
