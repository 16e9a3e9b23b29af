// Package webhook delivers run reports to registered webhook URLs when a run
// produces enough flags to warrant an analyst's attention.
//
// The HTTP API fires notifications in the background so they never delay the
// response; the batch CLI waits for delivery. Failed deliveries are logged and
// reported but not retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lumina/txn-monitor/internal/config"
	"lumina/txn-monitor/internal/domain"
)

// EventSuspiciousTransactions is the event name sent in every payload.
const EventSuspiciousTransactions = "suspicious_transactions"

// Notifier sends report payloads to every configured endpoint.
type Notifier struct {
	urls     []string
	minFlags int
	client   *http.Client
}

// New creates a Notifier for the configured endpoints with a sensible
// default HTTP client timeout.
func New(cfg config.Webhooks) *Notifier {
	return &Notifier{
		urls:     cfg.URLs,
		minFlags: cfg.MinFlags,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ShouldNotify reports whether r crosses the flag threshold and there is
// somewhere to send it.
func (n *Notifier) ShouldNotify(r *domain.Report) bool {
	return len(n.urls) > 0 && len(r.Flagged) > 0 && len(r.Flagged) >= n.minFlags
}

// Notify delivers r to every endpoint and waits for the results.
// The returned error joins every failed delivery.
func (n *Notifier) Notify(ctx context.Context, r *domain.Report) error {
	if !n.ShouldNotify(r) {
		return nil
	}

	body, err := json.Marshal(domain.AlertPayload{
		Event:       EventSuspiciousTransactions,
		TriggeredAt: time.Now().UTC(),
		Report:      *r,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var errs []error
	for _, url := range n.urls {
		if err := n.send(ctx, url, r.RunID, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyAsync fires Notify in the background with its own timeout.
func (n *Notifier) NotifyAsync(r *domain.Report) {
	if !n.ShouldNotify(r) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Notify(ctx, r); err != nil {
			slog.Warn("webhook: notification incomplete", "run_id", r.RunID, "error", err)
		}
	}()
}

// send delivers a single webhook call and logs the outcome.
func (n *Notifier) send(ctx context.Context, url, runID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("webhook: failed to build request", "url", url, "error", err)
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lumina-Event", EventSuspiciousTransactions)

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("webhook: delivery failed", "url", url, "error", err)
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("webhook: endpoint rejected payload", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("webhook %s: unexpected status %d", url, resp.StatusCode)
	}

	slog.Info("webhook: delivered",
		"url", url,
		"status", resp.StatusCode,
		"run_id", runID,
	)
	return nil
}
