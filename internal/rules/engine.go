// Package rules implements the transaction monitoring rule engine.
//
// Architecture:
//
//	The engine is stateless. Each run wraps its input in an immutable
//	store.Batch and feeds three stages from it:
//	  1. per-transaction rules over the batch in input order
//	  2. per-user rules over each user's partition, sorted by time
//	  3. the per-merchant rule over each merchant's partition
//	Stage outputs are concatenated in that order. Flags are never merged, so
//	one transaction may appear several times, even for the same reason.
//
// Rules implemented:
//  1. Large amount: amount above a fixed threshold
//  2. Odd hour: hour of day at or below the configured bound
//  3. High frequency: a burst of N transactions inside M minutes
//  4. Location inconsistency: consecutive purchases at different merchants
//     within H hours
//  5. Unusually large: amount at least K times the merchant's median
package rules

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lumina/txn-monitor/internal/config"
	"lumina/txn-monitor/internal/domain"
	"lumina/txn-monitor/internal/metrics"
	"lumina/txn-monitor/internal/report"
	"lumina/txn-monitor/internal/store"
)

// Engine evaluates a batch of transactions against the five rules.
type Engine struct {
	rules   config.Rules
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now for run timing and the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine using the given thresholds.
// The caller is expected to have validated rules.
func New(rules config.Rules, opts ...Option) *Engine {
	e := &Engine{
		rules:  rules,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the thresholds this engine was built with.
func (e *Engine) Rules() config.Rules {
	return e.rules
}

// ─── Public API ───────────────────────────────────────────────────────────────

// FlagTransactions runs every rule over txns and returns the combined flags.
// It has no side effects and returns an empty, non-nil slice when nothing
// matches.
func (e *Engine) FlagTransactions(txns []domain.Transaction) []domain.FlaggedTransaction {
	// A background context is never cancelled, so run cannot fail here.
	flagged, _ := e.run(context.Background(), store.New(txns))
	return flagged
}

// Evaluate runs FlagTransactions under a fresh run ID, records metrics and
// returns the resulting report. The only error it returns is ctx's, checked
// between stages.
func (e *Engine) Evaluate(ctx context.Context, txns []domain.Transaction) (*domain.Report, error) {
	runID := uuid.NewString()
	start := e.now()

	flagged, err := e.run(ctx, store.New(txns))
	if err != nil {
		e.logger.Warn("evaluation aborted", "run_id", runID, "error", err)
		return nil, err
	}

	end := e.now()
	elapsed := end.Sub(start)
	e.metrics.ObserveRun(len(txns), flagged, elapsed)
	e.logger.Info("evaluation complete",
		"run_id", runID,
		"transactions", len(txns),
		"flags", len(flagged),
		"parallel", e.rules.Parallel,
		"duration_ms", elapsed.Milliseconds(),
	)

	return report.Build(runID, len(txns), flagged, end.UTC()), nil
}

// ─── Aggregation ──────────────────────────────────────────────────────────────

type stage func(*store.Batch) []domain.FlaggedTransaction

func (e *Engine) stages() []stage {
	return []stage{e.perTransaction, e.perUser, e.perMerchant}
}

// run executes the stages and concatenates their outputs in stage order.
func (e *Engine) run(ctx context.Context, batch *store.Batch) ([]domain.FlaggedTransaction, error) {
	stages := e.stages()
	outputs := make([][]domain.FlaggedTransaction, len(stages))

	if e.rules.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range stages {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				// Each stage writes only its own slot.
				outputs[i] = s(batch)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, s := range stages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outputs[i] = s(batch)
		}
	}

	total := 0
	for _, out := range outputs {
		total += len(out)
	}
	flagged := make([]domain.FlaggedTransaction, 0, total)
	for _, out := range outputs {
		flagged = append(flagged, out...)
	}
	return flagged, nil
}

func (e *Engine) perTransaction(batch *store.Batch) []domain.FlaggedTransaction {
	var flagged []domain.FlaggedTransaction
	batch.Each(func(tx domain.Transaction) {
		flagged = append(flagged, e.largeAmount(tx)...)
		flagged = append(flagged, e.oddHour(tx)...)
	})
	return flagged
}

func (e *Engine) perUser(batch *store.Batch) []domain.FlaggedTransaction {
	var flagged []domain.FlaggedTransaction
	for _, p := range batch.GroupByUser() {
		sorted := store.SortByTime(p.Transactions)
		flagged = append(flagged, e.highFrequency(sorted)...)
		flagged = append(flagged, e.locationInconsistency(sorted)...)
	}
	return flagged
}

func (e *Engine) perMerchant(batch *store.Batch) []domain.FlaggedTransaction {
	var flagged []domain.FlaggedTransaction
	for _, p := range batch.GroupByMerchant() {
		flagged = append(flagged, e.unusuallyLarge(p.Transactions)...)
	}
	return flagged
}

// ─── Rule 1: Large amount ─────────────────────────────────────────────────────

func (e *Engine) largeAmount(tx domain.Transaction) []domain.FlaggedTransaction {
	if tx.Amount > e.rules.LargeAmountThreshold {
		return []domain.FlaggedTransaction{domain.Flag(tx, domain.ReasonLargeTransaction)}
	}
	return nil
}

// ─── Rule 2: Odd hour ─────────────────────────────────────────────────────────

// oddHour uses the wall-clock hour as recorded in the input. The bound is
// inclusive, so the default of 5 covers 00:00 through 05:59.
func (e *Engine) oddHour(tx domain.Transaction) []domain.FlaggedTransaction {
	if tx.Timestamp.Hour() <= e.rules.OddHourBound {
		return []domain.FlaggedTransaction{domain.Flag(tx, domain.ReasonOddHourTransaction)}
	}
	return nil
}

// ─── Rule 3: High frequency ───────────────────────────────────────────────────

// highFrequency scans fixed-size blocks over a user's time-sorted history.
// A block whose first-to-last span is within the window is flagged as a
// whole and skipped past; otherwise the block slides by one.
func (e *Engine) highFrequency(sorted []domain.Transaction) []domain.FlaggedTransaction {
	count := e.rules.HighFrequencyWindowCount
	limit := time.Duration(e.rules.HighFrequencyWindowMinutes) * time.Minute

	var flagged []domain.FlaggedTransaction
	i := 0
	for i+count <= len(sorted) {
		first, last := sorted[i], sorted[i+count-1]
		span := last.Timestamp.Sub(first.Timestamp).Truncate(time.Minute)
		if span > limit {
			i++
			continue
		}
		for _, tx := range sorted[i : i+count] {
			flagged = append(flagged, domain.Flag(tx, domain.ReasonHighFrequency))
		}
		i += count
	}
	return flagged
}

// ─── Rule 4: Location inconsistency ───────────────────────────────────────────

// locationInconsistency checks every adjacent pair independently, so a
// transaction between two qualifying gaps is flagged twice.
func (e *Engine) locationInconsistency(sorted []domain.Transaction) []domain.FlaggedTransaction {
	var flagged []domain.FlaggedTransaction
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.MerchantName == next.MerchantName {
			continue
		}
		// Whole hours, truncated: a 1h59m gap counts as 1.
		hours := int(next.Timestamp.Sub(cur.Timestamp) / time.Hour)
		if hours <= e.rules.LocationWindowHours {
			flagged = append(flagged,
				domain.Flag(cur, domain.ReasonLocationInconsistency),
				domain.Flag(next, domain.ReasonLocationInconsistency),
			)
		}
	}
	return flagged
}

// ─── Rule 5: Unusually large for the merchant ─────────────────────────────────

// unusuallyLarge compares each amount with the merchant's median. A zero
// median would flag every purchase, so the rule is skipped in that case.
func (e *Engine) unusuallyLarge(txns []domain.Transaction) []domain.FlaggedTransaction {
	amounts := make([]float64, len(txns))
	for i, tx := range txns {
		amounts[i] = tx.Amount
	}

	median, ok := Median(amounts)
	if !ok || median == 0 {
		return nil
	}

	threshold := e.rules.OutlierMultiplier * median
	var flagged []domain.FlaggedTransaction
	for _, tx := range txns {
		if tx.Amount >= threshold {
			flagged = append(flagged, domain.Flag(tx, domain.ReasonUnusuallyLargeTransaction))
		}
	}
	return flagged
}

// Median returns the median of amounts without modifying the slice.
// For an even count it is the mean of the two central values.
// ok is false for an empty slice.
func Median(amounts []float64) (median float64, ok bool) {
	n := len(amounts)
	if n == 0 {
		return 0, false
	}
	sorted := make([]float64, n)
	copy(sorted, amounts)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2, true
	}
	return sorted[n/2], true
}
