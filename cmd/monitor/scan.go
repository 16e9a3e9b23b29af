package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lumina/txn-monitor/internal/config"
	"lumina/txn-monitor/internal/domain"
	"lumina/txn-monitor/internal/loader"
	"lumina/txn-monitor/internal/report"
	"lumina/txn-monitor/internal/rules"
	"lumina/txn-monitor/internal/webhook"
)

var (
	scanFormat  string
	scanSummary bool
	scanNotify  bool

	largeThreshold    float64
	oddHourBound      int
	windowCount       int
	windowMinutes     int
	locationHours     int
	outlierMultiplier float64
	parallel          bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Flag suspicious transactions in a CSV or JSON batch",
	Long: `Load a batch of transactions, run the five monitoring rules over it and
print every flag. Files ending in .json are read as a JSON array; anything
else is read as CSV. Use "-" to read CSV from stdin.

Examples:
  monitor scan data/transactions.csv
  monitor scan data/transactions.csv --format csv > flagged.csv
  monitor scan batch.json --large-threshold 5000 --summary`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "output format (text, csv, json)")
	scanCmd.Flags().BoolVarP(&scanSummary, "summary", "s", false, "print a per-reason summary after the flags (text format)")
	scanCmd.Flags().BoolVar(&scanNotify, "notify", false, "send the report to configured webhooks")

	scanCmd.Flags().Float64Var(&largeThreshold, "large-threshold", 0, "flag amounts above this value")
	scanCmd.Flags().IntVar(&oddHourBound, "odd-hour-bound", 0, "flag hours 0 through this hour, inclusive")
	scanCmd.Flags().IntVar(&windowCount, "window-count", 0, "transactions per high-frequency window")
	scanCmd.Flags().IntVar(&windowMinutes, "window-minutes", 0, "maximum span of a high-frequency window, in minutes")
	scanCmd.Flags().IntVar(&locationHours, "location-hours", 0, "maximum gap between purchases at different merchants, in hours")
	scanCmd.Flags().Float64Var(&outlierMultiplier, "outlier-multiplier", 0, "flag amounts at least this many times the merchant median")
	scanCmd.Flags().BoolVar(&parallel, "parallel", false, "run rule stages concurrently")
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanFormat {
	case "text", "csv", "json":
	default:
		return fmt.Errorf("unknown format %q (want text, csv or json)", scanFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRuleFlags(cmd, &cfg.Rules)
	if err := cfg.Rules.Validate(); err != nil {
		return err
	}

	txns, err := readBatch(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engine := rules.New(cfg.Rules)
	rep, err := engine.Evaluate(ctx, txns)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if err := writeReport(cmd.OutOrStdout(), rep); err != nil {
		return err
	}

	if scanNotify {
		if err := webhook.New(cfg.Webhooks).Notify(ctx, rep); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	return nil
}

// applyRuleFlags overrides rule thresholds with any flag set on the command line.
func applyRuleFlags(cmd *cobra.Command, r *config.Rules) {
	f := cmd.Flags()
	if f.Changed("large-threshold") {
		r.LargeAmountThreshold = largeThreshold
	}
	if f.Changed("odd-hour-bound") {
		r.OddHourBound = oddHourBound
	}
	if f.Changed("window-count") {
		r.HighFrequencyWindowCount = windowCount
	}
	if f.Changed("window-minutes") {
		r.HighFrequencyWindowMinutes = windowMinutes
	}
	if f.Changed("location-hours") {
		r.LocationWindowHours = locationHours
	}
	if f.Changed("outlier-multiplier") {
		r.OutlierMultiplier = outlierMultiplier
	}
	if f.Changed("parallel") {
		r.Parallel = parallel
	}
}

func readBatch(path string, stdin io.Reader) ([]domain.Transaction, error) {
	if path == "-" {
		return loader.ReadCSV(stdin)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		txns, err := loader.ReadJSON(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return txns, nil
	}
	return loader.LoadFile(path)
}

func writeReport(w io.Writer, rep *domain.Report) error {
	switch scanFormat {
	case "csv":
		return report.WriteCSV(w, rep.Flagged)
	case "json":
		return report.WriteJSON(w, rep)
	}

	if err := report.WriteText(w, rep.Flagged); err != nil {
		return err
	}
	if scanSummary {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		return report.WriteSummary(w, rep)
	}
	return nil
}
