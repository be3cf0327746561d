package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/newthinker/meanrev/internal/backtest"
)

func find(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

// Ensure the registry implements the engine's telemetry sink
func TestRegistry_ImplementsRecorder(t *testing.T) {
	var _ backtest.Recorder = NewRegistry()
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}

func TestRegistry_RecordBarsAndSignals(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBar()
	reg.RecordBar()
	reg.RecordSignal("zscore", "hold")
	reg.RecordSignal("zscore", "buy")
	reg.RecordSignal("zscore", "hold")

	bars := find(t, reg, "meanrev_bars_processed_total")
	if bars == nil {
		t.Fatal("expected meanrev_bars_processed_total metric")
	}
	if got := bars.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("expected 2 bars, got %v", got)
	}

	signals := find(t, reg, "meanrev_signals_generated_total")
	if signals == nil {
		t.Fatal("expected meanrev_signals_generated_total metric")
	}
	counts := map[string]float64{}
	for _, m := range signals.GetMetric() {
		counts[labelValue(m, "action")] = m.GetCounter().GetValue()
	}
	if counts["hold"] != 2 || counts["buy"] != 1 {
		t.Errorf("unexpected signal counts: %v", counts)
	}
}

func TestRegistry_RecordFill(t *testing.T) {
	reg := NewRegistry()

	reg.RecordFill("BUY", 1.0)
	reg.RecordFill("SELL", 0.5)
	reg.RecordFill("SELL", 0)

	fills := find(t, reg, "meanrev_fills_total")
	if fills == nil {
		t.Fatal("expected meanrev_fills_total metric")
	}
	counts := map[string]float64{}
	for _, m := range fills.GetMetric() {
		counts[labelValue(m, "side")] = m.GetCounter().GetValue()
	}
	if counts["BUY"] != 1 || counts["SELL"] != 2 {
		t.Errorf("unexpected fill counts: %v", counts)
	}

	costs := find(t, reg, "meanrev_transaction_costs_total")
	if got := costs.GetMetric()[0].GetCounter().GetValue(); got != 1.5 {
		t.Errorf("expected costs 1.5, got %v", got)
	}
}

func TestRegistry_RecordBacktest(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBacktest("success", 0.123)
	reg.RecordBacktest("failed", 0.001)

	total := find(t, reg, "meanrev_backtests_total")
	if total == nil || len(total.GetMetric()) != 2 {
		t.Fatal("expected backtests_total with two status series")
	}

	hist := find(t, reg, "meanrev_backtest_duration_seconds")
	if hist == nil {
		t.Fatal("expected meanrev_backtest_duration_seconds metric")
	}
	h := hist.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("expected sample count 2, got %d", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.12 || h.GetSampleSum() > 0.13 {
		t.Errorf("expected sample sum ~0.124, got %v", h.GetSampleSum())
	}
}

func TestRegistry_RecordPerformance(t *testing.T) {
	reg := NewRegistry()

	reg.RecordPerformance(1.5, -0.2, 12000)
	reg.RecordPerformance(0.7, -0.1, 11000)

	tests := map[string]float64{
		"meanrev_last_sharpe_ratio": 0.7,
		"meanrev_last_max_drawdown": -0.1,
		"meanrev_last_final_equity": 11000,
	}
	for name, want := range tests {
		mf := find(t, reg, name)
		if mf == nil {
			t.Errorf("expected %s metric", name)
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestRegistry_RecordNotification(t *testing.T) {
	reg := NewRegistry()

	reg.RecordNotification("webhook", "success")

	mf := find(t, reg, "meanrev_notifications_total")
	if mf == nil {
		t.Fatal("expected meanrev_notifications_total metric")
	}
	if labelValue(mf.GetMetric()[0], "notifier") != "webhook" {
		t.Error("expected notifier label")
	}
}

func TestRegistry_WriteTextfile(t *testing.T) {
	reg := NewRegistry()
	reg.RecordBacktest("success", 0.01)

	path := filepath.Join(t.TempDir(), "meanrev.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), `meanrev_backtests_total{status="success"} 1`) {
		t.Errorf("textfile missing backtest counter:\n%s", data)
	}
}

func TestRegistry_WriteTextfile_BadPath(t *testing.T) {
	reg := NewRegistry()
	if err := reg.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRegistry_Push(t *testing.T) {
	var method, path, body string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := NewRegistry()
	reg.RecordBar()

	if err := reg.Push(context.Background(), server.URL, "meanrev"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if method != http.MethodPut {
		t.Errorf("expected PUT, got %s", method)
	}
	if path != "/metrics/job/meanrev" {
		t.Errorf("unexpected path %s", path)
	}
	if body == "" {
		t.Error("expected a metrics payload")
	}
}

func TestRegistry_Push_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewRegistry().Push(context.Background(), server.URL, "meanrev"); err == nil {
		t.Error("expected error from failing pushgateway")
	}
}
