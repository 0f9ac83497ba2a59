// Package metrics exposes Prometheus instrumentation for the clickcounter
// service. Every method is safe to call on a nil *Metrics, which disables
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clickcounter"

// Click outcomes.
const (
	ClickCredited = "credited"
	ClickIgnored  = "ignored"
	ClickNotFound = "not_found"
	ClickError    = "error"
)

// Metrics holds all clickcounter collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Click accounting
	ClicksTotal      *prometheus.CounterVec
	ClickDuration    prometheus.Histogram
	StoreRetries     prometheus.Counter
	StoreExhausted   prometheus.Counter
	ConfigOpsTotal   *prometheus.CounterVec
	BotClicksFlagged prometheus.Counter

	// Visit log
	VisitsBuffered     prometheus.Counter
	VisitsDropped      prometheus.Counter
	VisitsFlushed      prometheus.Counter
	VisitFlushFailures prometheus.Counter
	VisitBufferDepth   prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: reg}
	factory := promauto.With(reg)
	initClickMetrics(m, factory)
	initVisitMetrics(m, factory)
	return m
}

func initClickMetrics(m *Metrics, factory promauto.Factory) {
	m.ClicksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clicks_total",
		Help:      "Click requests by outcome (credited, ignored, not_found, error)",
	}, []string{"outcome"})

	m.ClickDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "click_duration_seconds",
		Help:      "Time to account a click including store retries",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	m.StoreRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_total",
		Help:      "Record store operations retried after a transient failure",
	})

	m.StoreExhausted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_exhausted_total",
		Help:      "Record store operations that failed after the last retry",
	})

	m.ConfigOpsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "config_operations_total",
		Help:      "Config endpoint operations by kind and result",
	}, []string{"operation", "result"})

	m.BotClicksFlagged = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bot_clicks_flagged_total",
		Help:      "Click requests flagged by the bot filter",
	})
}

func initVisitMetrics(m *Metrics, factory promauto.Factory) {
	m.VisitsBuffered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visits_buffered_total",
		Help:      "Visit events accepted into the write buffer",
	})

	m.VisitsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visits_dropped_total",
		Help:      "Visit events dropped because the buffer was full",
	})

	m.VisitsFlushed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visits_flushed_total",
		Help:      "Visit events written to the event log",
	})

	m.VisitFlushFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visit_flush_failures_total",
		Help:      "Batch inserts into the event log that failed",
	})

	m.VisitBufferDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "visit_buffer_depth",
		Help:      "Visit events waiting in the write buffer",
	})
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordClick counts one click by outcome and its latency.
func (m *Metrics) RecordClick(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ClicksTotal.WithLabelValues(outcome).Inc()
	m.ClickDuration.Observe(elapsed.Seconds())
}

// RecordRetry counts a retried store operation.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.StoreRetries.Inc()
}

// RecordExhausted counts a store operation that ran out of attempts.
func (m *Metrics) RecordExhausted() {
	if m == nil {
		return
	}
	m.StoreExhausted.Inc()
}

// RecordConfigOp counts a config endpoint operation.
func (m *Metrics) RecordConfigOp(operation, result string) {
	if m == nil {
		return
	}
	m.ConfigOpsTotal.WithLabelValues(operation, result).Inc()
}

// RecordBotFlagged counts a click flagged as bot traffic.
func (m *Metrics) RecordBotFlagged() {
	if m == nil {
		return
	}
	m.BotClicksFlagged.Inc()
}

// RecordVisitBuffered counts an accepted visit event.
func (m *Metrics) RecordVisitBuffered() {
	if m == nil {
		return
	}
	m.VisitsBuffered.Inc()
}

// RecordVisitDropped counts a visit event lost to a full buffer.
func (m *Metrics) RecordVisitDropped() {
	if m == nil {
		return
	}
	m.VisitsDropped.Inc()
}

// RecordVisitsFlushed counts events written in one batch.
func (m *Metrics) RecordVisitsFlushed(n int) {
	if m == nil {
		return
	}
	m.VisitsFlushed.Add(float64(n))
}

// RecordVisitFlushFailure counts a failed batch insert.
func (m *Metrics) RecordVisitFlushFailure() {
	if m == nil {
		return
	}
	m.VisitFlushFailures.Inc()
}

// SetVisitBufferDepth reports the current buffer length.
func (m *Metrics) SetVisitBufferDepth(n int) {
	if m == nil {
		return
	}
	m.VisitBufferDepth.Set(float64(n))
}
