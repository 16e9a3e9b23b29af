// Package domain contains all core types used across the application.
// Keeping domain types in one place makes the monitoring rules easy to reason about.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the textual timestamp pattern used by both the input file and
// the rendered output.
const TimeLayout = "2006-01-02 15:04:05"

// ─── Reasons ──────────────────────────────────────────────────────────────────

// Reason is the tag attached to a flagged transaction. The set is closed.
type Reason string

// Flag reasons, in the order their detectors run.
const (
	ReasonLargeTransaction          Reason = "LargeTransaction"
	ReasonOddHourTransaction        Reason = "OddHourTransaction"
	ReasonHighFrequency             Reason = "HighFrequency"
	ReasonLocationInconsistency     Reason = "LocationInconsistency"
	ReasonUnusuallyLargeTransaction Reason = "UnusuallyLargeTransaction"
)

// Reasons lists every reason in detector execution order.
var Reasons = []Reason{
	ReasonLargeTransaction,
	ReasonOddHourTransaction,
	ReasonHighFrequency,
	ReasonLocationInconsistency,
	ReasonUnusuallyLargeTransaction,
}

var reasonLabels = map[Reason]string{
	ReasonLargeTransaction:          "Large Transaction",
	ReasonOddHourTransaction:        "Odd Hour Transaction",
	ReasonHighFrequency:             "High Frequency",
	ReasonLocationInconsistency:     "Location Inconsistency",
	ReasonUnusuallyLargeTransaction: "Unusually Large Transaction",
}

// Label returns the analyst-facing wording for the reason.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return string(r)
}

// Valid reports whether r belongs to the closed reason set.
func (r Reason) Valid() bool {
	_, ok := reasonLabels[r]
	return ok
}

// ─── Core domain types ────────────────────────────────────────────────────────

// Transaction is a single record of the batch under evaluation.
// It is created once by the loader and never modified afterwards.
type Transaction struct {
	UserID       string    `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
	MerchantName string    `json:"merchant_name"` // also stands in for location
	Amount       float64   `json:"amount"`
}

// FlaggedTransaction is a copy of a Transaction plus the rule that matched it.
// The same transaction may be flagged several times, even for the same reason.
type FlaggedTransaction struct {
	Transaction
	Reason Reason `json:"reason"`
}

// Flag builds a FlaggedTransaction for tx.
func Flag(tx Transaction, reason Reason) FlaggedTransaction {
	return FlaggedTransaction{Transaction: tx, Reason: reason}
}

// ─── JSON encoding ────────────────────────────────────────────────────────────

// Timestamps are encoded with TimeLayout so a JSON report row reads the same
// as the CSV it came from and can be loaded again.

type transactionJSON struct {
	UserID       string  `json:"user_id"`
	Timestamp    string  `json:"timestamp"`
	MerchantName string  `json:"merchant_name"`
	Amount       float64 `json:"amount"`
}

type flaggedJSON struct {
	transactionJSON
	Reason Reason `json:"reason"`
}

func (t Transaction) wire() transactionJSON {
	return transactionJSON{
		UserID:       t.UserID,
		Timestamp:    t.Timestamp.Format(TimeLayout),
		MerchantName: t.MerchantName,
		Amount:       t.Amount,
	}
}

func (j transactionJSON) transaction() (Transaction, error) {
	ts, err := time.Parse(TimeLayout, j.Timestamp)
	if err != nil {
		return Transaction{}, fmt.Errorf("timestamp %q: %w", j.Timestamp, err)
	}
	return Transaction{
		UserID:       j.UserID,
		Timestamp:    ts,
		MerchantName: j.MerchantName,
		Amount:       j.Amount,
	}, nil
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.wire())
}

func (t *Transaction) UnmarshalJSON(b []byte) error {
	var j transactionJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	tx, err := j.transaction()
	if err != nil {
		return err
	}
	*t = tx
	return nil
}

// FlaggedTransaction needs its own pair: the embedded Transaction methods
// would otherwise be promoted and drop the reason.

func (f FlaggedTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(flaggedJSON{transactionJSON: f.Transaction.wire(), Reason: f.Reason})
}

func (f *FlaggedTransaction) UnmarshalJSON(b []byte) error {
	var j flaggedJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	tx, err := j.transaction()
	if err != nil {
		return err
	}
	*f = FlaggedTransaction{Transaction: tx, Reason: j.Reason}
	return nil
}

// ─── Reporting ────────────────────────────────────────────────────────────────

// Report is the result of one evaluation run, handed to the output adapters.
type Report struct {
	RunID        string               `json:"run_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Transactions int                  `json:"transactions"`
	Summary      []ReasonSummary      `json:"summary"`
	Flagged      []FlaggedTransaction `json:"flagged"`
}

// ReasonSummary holds headline numbers for one reason in a Report.
type ReasonSummary struct {
	Reason      Reason  `json:"reason"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

// AlertPayload is the body sent to registered webhook URLs.
type AlertPayload struct {
	Event       string    `json:"event"` // always "suspicious_transactions"
	TriggeredAt time.Time `json:"triggered_at"`
	Report      Report    `json:"report"`
}
