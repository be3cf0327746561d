package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "meanrev"

// Registry holds all Prometheus metrics. It implements backtest.Recorder.
type Registry struct {
	*prometheus.Registry

	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	barsProcessed    prometheus.Counter
	signalsGenerated *prometheus.CounterVec
	fillsTotal       *prometheus.CounterVec
	costsTotal       prometheus.Counter
	sharpeRatio      prometheus.Gauge
	maxDrawdown      prometheus.Gauge
	finalEquity      prometheus.Gauge
	notifications    *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{Registry: reg}

	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Backtest duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
	)
	r.barsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_processed_total",
			Help:      "Total number of price bars processed",
		},
	)
	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_generated_total",
			Help:      "Total number of signals generated",
		},
		[]string{"strategy", "action"},
	)
	r.fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Total number of simulated fills",
		},
		[]string{"side"},
	)
	r.costsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_costs_total",
			Help:      "Transaction costs charged across all fills",
		},
	)
	r.sharpeRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sharpe_ratio",
			Help:      "Annualized Sharpe ratio of the last completed backtest",
		},
	)
	r.maxDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_max_drawdown",
			Help:      "Maximum drawdown of the last completed backtest, as a non-positive fraction",
		},
	)
	r.finalEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_final_equity",
			Help:      "Final equity of the last completed backtest",
		},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of run summaries sent to notifiers",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.fillsTotal)
	reg.MustRegister(r.costsTotal)
	reg.MustRegister(r.sharpeRatio)
	reg.MustRegister(r.maxDrawdown)
	reg.MustRegister(r.finalEquity)
	reg.MustRegister(r.notifications)

	return r
}

// RecordBar records one processed bar.
func (r *Registry) RecordBar() {
	r.barsProcessed.Inc()
}

// RecordSignal records a generated signal.
func (r *Registry) RecordSignal(strategy, action string) {
	r.signalsGenerated.WithLabelValues(strategy, action).Inc()
}

// RecordFill records a simulated fill and its cost.
func (r *Registry) RecordFill(side string, cost float64) {
	r.fillsTotal.WithLabelValues(side).Inc()
	if cost > 0 {
		r.costsTotal.Add(cost)
	}
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordPerformance sets the last-run performance gauges.
func (r *Registry) RecordPerformance(sharpe, maxDrawdown, finalEquity float64) {
	r.sharpeRatio.Set(sharpe)
	r.maxDrawdown.Set(maxDrawdown)
	r.finalEquity.Set(finalEquity)
}

// RecordNotification records a notifier delivery attempt.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Pushgateway under job, replacing any metrics
// previously pushed for the same job.
func (r *Registry) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
