package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"lumina/txn-monitor/internal/domain"
	"lumina/txn-monitor/internal/loader"
	"lumina/txn-monitor/internal/report"
	"lumina/txn-monitor/internal/rules"
	"lumina/txn-monitor/internal/webhook"
)

// maxBodyBytes bounds a submitted batch. Ten thousand CSV rows fit in well
// under a megabyte; the headroom covers JSON's verbosity.
const maxBodyBytes = 32 << 20

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	engine   *rules.Engine
	notifier *webhook.Notifier
}

// NewHandler creates a Handler wired to the given dependencies.
func NewHandler(e *rules.Engine, n *webhook.Notifier) *Handler {
	return &Handler{engine: e, notifier: n}
}

// ─── POST /api/v1/evaluations ─────────────────────────────────────────────────

// Evaluate accepts a batch of transactions, runs every rule over it and
// returns the report synchronously. Nothing is kept once the response is sent.
//
// The body is a JSON array (application/json) or CSV with the same columns
// as the batch file (text/csv). Query params:
//
//	format: "json" (default) for the full report, "csv" for the flag list only
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		fail(w, http.StatusBadRequest, codeInvalidParam, "format must be 'json' or 'csv'")
		return
	}

	txns, err := h.readBatch(w, r)
	if err != nil {
		var mediaErr *mediaTypeError
		var maxErr *http.MaxBytesError
		var rowErr *loader.RowError
		switch {
		case errors.As(err, &mediaErr):
			fail(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, mediaErr.Error())
		case errors.As(err, &maxErr), errors.Is(err, loader.ErrTooManyRows):
			fail(w, http.StatusRequestEntityTooLarge, codeBatchTooLarge, "batch is too large")
		case errors.As(err, &rowErr):
			fail(w, http.StatusBadRequest, codeInvalidTransaction, rowErr.Error())
		default:
			fail(w, http.StatusBadRequest, codeInvalidBody, err.Error())
		}
		return
	}

	rep, err := h.engine.Evaluate(r.Context(), txns)
	if err != nil {
		failInternal(w, fmt.Errorf("evaluate: %w", err))
		return
	}

	// Fire async webhook notifications for runs with enough flags.
	h.notifier.NotifyAsync(rep)

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("X-Run-ID", rep.RunID)
		w.WriteHeader(http.StatusCreated)
		if err := report.WriteCSV(w, rep.Flagged); err != nil {
			slog.Warn("api: failed to write csv response", "run_id", rep.RunID, "error", err)
		}
		return
	}
	respond(w, http.StatusCreated, rep)
}

type mediaTypeError struct {
	contentType string
}

func (e *mediaTypeError) Error() string {
	return fmt.Sprintf("content type %q is not supported; use application/json or text/csv", e.contentType)
}

func (h *Handler) readBatch(w http.ResponseWriter, r *http.Request) ([]domain.Transaction, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct := r.Header.Get("Content-Type")
	mediaType := "application/json"
	if ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, &mediaTypeError{contentType: ct}
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		return loader.ReadJSON(body)
	case "text/csv":
		return loader.ReadCSV(body)
	}
	return nil, &mediaTypeError{contentType: ct}
}

// ─── GET /api/v1/config ───────────────────────────────────────────────────────

// GetConfig returns the rule thresholds the engine is running with.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.engine.Rules())
}

// ─── GET /api/v1/reasons ──────────────────────────────────────────────────────

// ListReasons returns every flag reason with its analyst-facing label.
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	type reason struct {
		Reason domain.Reason `json:"reason"`
		Label  string        `json:"label"`
	}
	out := make([]reason, len(domain.Reasons))
	for i, rr := range domain.Reasons {
		out[i] = reason{Reason: rr, Label: rr.Label()}
	}
	respond(w, http.StatusOK, out)
}
