package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lumina/txn-monitor/internal/api"
	"lumina/txn-monitor/internal/config"
	"lumina/txn-monitor/internal/metrics"
	"lumina/txn-monitor/internal/rules"
	"lumina/txn-monitor/internal/webhook"
)

// ─── Test server setup ────────────────────────────────────────────────────────

func newTestServer(t *testing.T, hooks config.Webhooks) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	e := rules.New(config.DefaultRules(), rules.WithMetrics(metrics.New(reg)))
	n := webhook.New(hooks)
	h := api.NewHandler(e, n)
	return httptest.NewServer(api.NewRouter(h, reg))
}

func postBody(t *testing.T, srv *httptest.Server, path, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	d, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no 'data' key: %v", env)
	}
	return d
}

func decodeError(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	e, ok := env["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no 'error' key: %v", env)
	}
	return e
}

func row(user, ts, merchant string, amount float64) map[string]any {
	return map[string]any{
		"user_id":       user,
		"timestamp":     ts,
		"merchant_name": merchant,
		"amount":        amount,
	}
}

// suspiciousBatch yields one large, two odd-hour and two location flags.
func suspiciousBatch() []map[string]any {
	return []map[string]any{
		row("u1", "2024-03-01 03:00:00", "Electronics Hub", 15000),
		row("u1", "2024-03-01 03:20:00", "Fuel Stop", 40),
		row("u2", "2024-03-01 14:00:00", "Coffee Corner", 4.5),
	}
}

// ─── Health ───────────────────────────────────────────────────────────────────

func TestHealth_Returns200(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := get(t, srv, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

// ─── POST /api/v1/evaluations ─────────────────────────────────────────────────

func TestEvaluate_JSONBatch_Returns201WithReport(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postJSON(t, srv, "/api/v1/evaluations", suspiciousBatch())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	d := decodeData(t, resp)

	if d["run_id"] == "" || d["run_id"] == nil {
		t.Error("response must contain 'run_id'")
	}
	if d["transactions"] != float64(3) {
		t.Errorf("expected 3 transactions, got %v", d["transactions"])
	}
	flagged, _ := d["flagged"].([]any)
	if len(flagged) != 5 {
		t.Fatalf("expected 5 flags, got %d", len(flagged))
	}
	first, _ := flagged[0].(map[string]any)
	if first["timestamp"] != "2024-03-01 03:00:00" {
		t.Errorf("expected timestamp in input pattern, got %v", first["timestamp"])
	}
	summary, _ := d["summary"].([]any)
	if len(summary) != 5 {
		t.Errorf("expected a summary row per reason, got %d", len(summary))
	}
}

func TestEvaluate_CSVBatch_Returns201(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	body := "user_id,timestamp,merchant_name,amount\nu1,2024-03-01 02:00:00,Shop,12\n"
	resp := postBody(t, srv, "/api/v1/evaluations", "text/csv", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	flagged, _ := decodeData(t, resp)["flagged"].([]any)
	if len(flagged) != 1 {
		t.Errorf("expected 1 odd-hour flag, got %d", len(flagged))
	}
}

func TestEvaluate_EmptyBatch_ReturnsEmptyFlagList(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postBody(t, srv, "/api/v1/evaluations", "application/json", "[]")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	flagged, ok := decodeData(t, resp)["flagged"].([]any)
	if !ok || len(flagged) != 0 {
		t.Errorf("expected an empty flag list, got %v", flagged)
	}
}

func TestEvaluate_CSVFormat_ReturnsFlagRows(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postJSON(t, srv, "/api/v1/evaluations?format=csv", suspiciousBatch())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if resp.Header.Get("X-Run-ID") == "" {
		t.Error("expected X-Run-ID header")
	}
	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 6 {
		t.Errorf("expected header + 5 rows, got %d lines", len(lines))
	}
}

func TestEvaluate_InvalidFormat_Returns400(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postJSON(t, srv, "/api/v1/evaluations?format=xml", suspiciousBatch())
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEvaluate_InvalidJSON_Returns400(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postBody(t, srv, "/api/v1/evaluations", "application/json", "not-json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e["code"] != "INVALID_BODY" {
		t.Errorf("expected INVALID_BODY, got %v", e["code"])
	}
}

func TestEvaluate_MalformedRow_Returns400WithLine(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	batch := suspiciousBatch()
	batch[1]["timestamp"] = "2024-03-01T03:20:00Z"
	resp := postJSON(t, srv, "/api/v1/evaluations", batch)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	e := decodeError(t, resp)
	if e["code"] != "INVALID_TRANSACTION" {
		t.Errorf("expected INVALID_TRANSACTION, got %v", e["code"])
	}
	if msg, _ := e["message"].(string); !strings.Contains(msg, "line 2") {
		t.Errorf("expected message to name line 2, got %q", msg)
	}
}

func TestEvaluate_UnsupportedContentType_Returns415(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := postBody(t, srv, "/api/v1/evaluations", "application/xml", "<batch/>")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
}

func TestEvaluate_FiresWebhook(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	srv := newTestServer(t, config.Webhooks{URLs: []string{hook.URL}, MinFlags: 1})
	defer srv.Close()

	resp := postJSON(t, srv, "/api/v1/evaluations", suspiciousBatch())
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 webhook call, got %d", hits.Load())
	}
}

// ─── GET /api/v1/config, /api/v1/reasons ──────────────────────────────────────

func TestGetConfig_ReturnsRuleThresholds(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	d := decodeData(t, get(t, srv, "/api/v1/config"))
	if d["large_amount_threshold"] != float64(10000) {
		t.Errorf("expected 10000, got %v", d["large_amount_threshold"])
	}
	if d["odd_hour_bound"] != float64(5) {
		t.Errorf("expected 5, got %v", d["odd_hour_bound"])
	}
}

func TestListReasons_ReturnsFiveReasons(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	resp := get(t, srv, "/api/v1/reasons")
	defer resp.Body.Close()
	var env struct {
		Data []struct {
			Reason string `json:"reason"`
			Label  string `json:"label"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 5 || env.Data[0].Label != "Large Transaction" {
		t.Errorf("unexpected reasons: %+v", env.Data)
	}
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

func TestMetrics_ExposesRunCounter(t *testing.T) {
	srv := newTestServer(t, config.Webhooks{})
	defer srv.Close()

	postJSON(t, srv, "/api/v1/evaluations", suspiciousBatch()).Body.Close()

	resp := get(t, srv, "/metrics")
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "txmon_runs_total 1") {
		t.Errorf("expected txmon_runs_total 1 in metrics output, got:\n%s", body)
	}
}
