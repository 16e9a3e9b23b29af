// Package report turns the engine's flag list into what analysts read:
// a Report with a per-reason summary, and text, CSV or JSON renderings.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"lumina/txn-monitor/internal/domain"
)

// Build assembles a Report for one run.
func Build(runID string, transactions int, flagged []domain.FlaggedTransaction, at time.Time) *domain.Report {
	if flagged == nil {
		flagged = []domain.FlaggedTransaction{}
	}
	return &domain.Report{
		RunID:        runID,
		GeneratedAt:  at,
		Transactions: transactions,
		Summary:      Summarize(flagged),
		Flagged:      flagged,
	}
}

// Summarize counts flags per reason. Every reason is present, in detector
// order, even when its count is zero.
func Summarize(flagged []domain.FlaggedTransaction) []domain.ReasonSummary {
	idx := make(map[domain.Reason]int, len(domain.Reasons))
	summary := make([]domain.ReasonSummary, len(domain.Reasons))
	for i, r := range domain.Reasons {
		idx[r] = i
		summary[i].Reason = r
	}

	for _, f := range flagged {
		i, ok := idx[f.Reason]
		if !ok {
			continue
		}
		summary[i].Count++
		summary[i].TotalAmount += f.Amount
	}
	return summary
}

// ─── Renderers ────────────────────────────────────────────────────────────────

// Line formats a single flag the way the text report prints it.
func Line(f domain.FlaggedTransaction) string {
	return fmt.Sprintf("User: %s, Merchant: %s, Amount: %.2f, Time: %s, Flagged for: %s",
		f.UserID, f.MerchantName, f.Amount, f.Timestamp.Format(domain.TimeLayout), f.Reason.Label())
}

// WriteText writes one Line per flag.
func WriteText(w io.Writer, flagged []domain.FlaggedTransaction) error {
	for _, f := range flagged {
		if _, err := fmt.Fprintln(w, Line(f)); err != nil {
			return fmt.Errorf("write text report: %w", err)
		}
	}
	return nil
}

// WriteSummary writes a short per-reason tally.
func WriteSummary(w io.Writer, r *domain.Report) error {
	if _, err := fmt.Fprintf(w, "Run %s: %d transactions, %d flags\n", r.RunID, r.Transactions, len(r.Flagged)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	for _, s := range r.Summary {
		if _, err := fmt.Fprintf(w, "  %-28s %6d  %14.2f\n", s.Reason.Label(), s.Count, s.TotalAmount); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"user_id", "merchant_name", "amount", "timestamp", "reason"}

// WriteCSV writes the flags as CSV with a header row.
func WriteCSV(w io.Writer, flagged []domain.FlaggedTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, f := range flagged {
		rec := []string{
			f.UserID,
			f.MerchantName,
			strconv.FormatFloat(f.Amount, 'f', 2, 64),
			f.Timestamp.Format(domain.TimeLayout),
			string(f.Reason),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the whole report as indented JSON.
func WriteJSON(w io.Writer, r *domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}
