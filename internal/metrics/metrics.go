// Package metrics exposes Prometheus instruments for evaluation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lumina/txn-monitor/internal/domain"
)

// Metrics provides observability for the rule engine.
type Metrics struct {
	// Completed evaluation runs
	Runs prometheus.Counter

	// Transactions evaluated across all runs
	TransactionsEvaluated prometheus.Counter

	// Flags emitted by reason
	Flags *prometheus.CounterVec

	// Wall time of a full run
	RunLatency prometheus.Histogram
}

// New creates a Metrics instance registered with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Name: "txmon_runs_total",
			Help: "Total completed evaluation runs",
		}),
		TransactionsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "txmon_transactions_evaluated_total",
			Help: "Total transactions fed to the rule engine",
		}),
		Flags: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txmon_flags_total",
			Help: "Total flags emitted by reason",
		}, []string{"reason"}),
		RunLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txmon_run_duration_seconds",
			Help:    "Duration of a full evaluation run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveRun records one finished run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(transactions int, flagged []domain.FlaggedTransaction, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.TransactionsEvaluated.Add(float64(transactions))
	for _, f := range flagged {
		m.Flags.WithLabelValues(string(f.Reason)).Inc()
	}
	m.RunLatency.Observe(d.Seconds())
}
