// Package loader reads transaction batches from CSV or JSON and turns them
// into well-formed domain.Transaction values. Anything it cannot parse is
// reported here, with the offending line, and never reaches the rule engine.
package loader

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"lumina/txn-monitor/internal/domain"
)

// Validation failures shared by the CSV and JSON readers.
var (
	ErrEmptyField     = errors.New("required field is empty")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrBadTimestamp   = errors.New("timestamp does not match " + domain.TimeLayout)
	ErrBadAmount      = errors.New("amount is not a number")
	ErrNonFinite      = errors.New("amount must be finite")
	ErrFieldCount     = errors.New("expected 4 fields: user_id,timestamp,merchant_name,amount")
)

// MaxRows caps a single batch. The engine is sized for batches of about
// ten thousand records; anything far beyond that is rejected up front.
const MaxRows = 100_000

// ErrTooManyRows is returned when a batch exceeds MaxRows.
var ErrTooManyRows = fmt.Errorf("batch exceeds %d rows", MaxRows)

// RowError ties a validation failure to its position in the input.
// Line is 1-based for CSV (header included) and the 1-based array index for JSON.
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ─── CSV ──────────────────────────────────────────────────────────────────────

// LoadFile reads a CSV batch from path.
func LoadFile(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	txns, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}

// ReadCSV parses rows of user_id,timestamp,merchant_name,amount.
// A first row whose first column is "user_id" is treated as a header.
// Blank lines are skipped and fields are trimmed.
func ReadCSV(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // checked per row for a clearer message
	cr.TrimLeadingSpace = true

	var txns []domain.Transaction
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		if len(txns) >= MaxRows {
			return nil, ErrTooManyRows
		}
		if len(rec) != 4 {
			return nil, &RowError{Line: line, Err: ErrFieldCount}
		}

		tx, err := parseRow(line, rec[0], rec[1], rec[2], rec[3])
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

// isHeader reports whether the first record is a column header rather than
// data: either it starts with user_id, or neither its timestamp nor its
// amount column parses.
func isHeader(rec []string) bool {
	if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "user_id") {
		return true
	}
	if len(rec) != 4 {
		return false
	}
	if _, err := time.Parse(domain.TimeLayout, strings.TrimSpace(rec[1])); err == nil {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	return err != nil
}

func parseRow(line int, userID, timestamp, merchant, amount string) (domain.Transaction, error) {
	userID = strings.TrimSpace(userID)
	merchant = strings.TrimSpace(merchant)

	if userID == "" {
		return domain.Transaction{}, &RowError{Line: line, Field: "user_id", Err: ErrEmptyField}
	}
	if merchant == "" {
		return domain.Transaction{}, &RowError{Line: line, Field: "merchant_name", Err: ErrEmptyField}
	}

	ts, err := time.Parse(domain.TimeLayout, strings.TrimSpace(timestamp))
	if err != nil {
		return domain.Transaction{}, &RowError{Line: line, Field: "timestamp", Err: ErrBadTimestamp}
	}

	amt, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return domain.Transaction{}, &RowError{Line: line, Field: "amount", Err: ErrBadAmount}
	}
	if math.IsNaN(amt) || math.IsInf(amt, 0) {
		return domain.Transaction{}, &RowError{Line: line, Field: "amount", Err: ErrNonFinite}
	}
	if amt < 0 {
		return domain.Transaction{}, &RowError{Line: line, Field: "amount", Err: ErrNegativeAmount}
	}

	return domain.Transaction{
		UserID:       userID,
		Timestamp:    ts,
		MerchantName: merchant,
		Amount:       amt,
	}, nil
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

// jsonRow mirrors the CSV columns. Timestamp uses the same layout as the CSV
// rather than RFC 3339 so both inputs are interchangeable.
type jsonRow struct {
	UserID       string      `json:"user_id"`
	Timestamp    string      `json:"timestamp"`
	MerchantName string      `json:"merchant_name"`
	Amount       json.Number `json:"amount"`
}

// ReadJSON parses a JSON array of {user_id, timestamp, merchant_name, amount}.
func ReadJSON(r io.Reader) ([]domain.Transaction, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []jsonRow
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(rows) > MaxRows {
		return nil, ErrTooManyRows
	}

	txns := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := parseRow(i+1, row.UserID, row.Timestamp, row.MerchantName, row.Amount.String())
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

// ─── Writing ──────────────────────────────────────────────────────────────────

// WriteCSV writes txns in the format ReadCSV accepts, header included.
func WriteCSV(w io.Writer, txns []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"user_id", "timestamp", "merchant_name", "amount"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txns {
		rec := []string{
			tx.UserID,
			tx.Timestamp.Format(domain.TimeLayout),
			tx.MerchantName,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
