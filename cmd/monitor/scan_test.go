package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

const batchCSV = `user_id,timestamp,merchant_name,amount
u1,2024-03-01 12:00:00,Shop,12000
u2,2024-03-01 03:15:00,Cafe,4.50
u3,2024-03-01 14:00:00,Cafe,5.00
`

// resetScan restores package flag state so tests don't leak into each other.
func resetScan(t *testing.T) *bytes.Buffer {
	t.Helper()
	scanCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	configPath = ""
	envPath = filepath.Join(t.TempDir(), "missing.env")

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	return &out
}

func writeBatch(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	return path
}

func TestScan_TextOutput(t *testing.T) {
	out := resetScan(t)
	path := writeBatch(t, "batch.csv", batchCSV)

	if err := runScan(scanCmd, []string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 flag lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "User: u1") || !strings.HasSuffix(lines[0], "Large Transaction") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "User: u2") {
		t.Errorf("unexpected second line: %q", lines[1])
	}
}

func TestScan_CSVOutput(t *testing.T) {
	out := resetScan(t)
	path := writeBatch(t, "batch.csv", batchCSV)
	if err := scanCmd.Flags().Set("format", "csv"); err != nil {
		t.Fatal(err)
	}

	if err := runScan(scanCmd, []string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := "user_id,merchant_name,amount,timestamp,reason\n" +
		"u1,Shop,12000.00,2024-03-01 12:00:00,LargeTransaction\n" +
		"u2,Cafe,4.50,2024-03-01 03:15:00,OddHourTransaction\n"
	if out.String() != want {
		t.Errorf("csv output mismatch\nwant:\n%s\ngot:\n%s", want, out.String())
	}
}

func TestScan_JSONInputAndOutput(t *testing.T) {
	out := resetScan(t)
	path := writeBatch(t, "batch.json", `[
		{"user_id":"u1","timestamp":"2024-03-01 12:00:00","merchant_name":"Shop","amount":12000}
	]`)
	if err := scanCmd.Flags().Set("format", "json"); err != nil {
		t.Fatal(err)
	}

	if err := runScan(scanCmd, []string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	var rep struct {
		RunID        string `json:"run_id"`
		Transactions int    `json:"transactions"`
		Flagged      []any  `json:"flagged"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if rep.Transactions != 1 || len(rep.Flagged) != 1 {
		t.Errorf("expected 1 transaction and 1 flag, got %d and %d", rep.Transactions, len(rep.Flagged))
	}
}

func TestScan_ThresholdOverride(t *testing.T) {
	out := resetScan(t)
	path := writeBatch(t, "batch.csv", batchCSV)
	if err := scanCmd.Flags().Set("large-threshold", "20000"); err != nil {
		t.Fatal(err)
	}
	if err := scanCmd.Flags().Set("odd-hour-bound", "0"); err != nil {
		t.Fatal(err)
	}

	if err := runScan(scanCmd, []string{path}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Errorf("expected no flags with raised thresholds, got:\n%s", got)
	}
}

func TestScan_Errors(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		resetScan(t)
		if err := scanCmd.Flags().Set("format", "xml"); err != nil {
			t.Fatal(err)
		}
		if err := runScan(scanCmd, []string{"whatever.csv"}); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("invalid override", func(t *testing.T) {
		resetScan(t)
		if err := scanCmd.Flags().Set("window-count", "0"); err != nil {
			t.Fatal(err)
		}
		path := writeBatch(t, "batch.csv", batchCSV)
		if err := runScan(scanCmd, []string{path}); err == nil {
			t.Error("expected validation error for zero window count")
		}
	})

	t.Run("bad row", func(t *testing.T) {
		resetScan(t)
		path := writeBatch(t, "batch.csv", "u1,2024-03-01 12:00:00,Shop,-5\n")
		err := runScan(scanCmd, []string{path})
		if err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("expected line-numbered error, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		resetScan(t)
		if err := runScan(scanCmd, []string{filepath.Join(t.TempDir(), "nope.csv")}); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
