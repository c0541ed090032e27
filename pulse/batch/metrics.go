package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch and operation outcome labels.
const (
	outcomeCommitted = "committed"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

// Metrics holds the Prometheus collectors of the batch engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	BatchesTotal    *prometheus.CounterVec
	OperationsTotal *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	BatchesInFlight prometheus.Gauge
	BatchDuration   prometheus.Histogram
}

// NewMetrics registers the engine's collectors with registerer.
// Nil registers with prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsebatch_runs_total",
				Help: "Total number of finished runs",
			},
			[]string{"mode", "terminated"}, // mode: aggregate, stream
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsebatch_batches_total",
				Help: "Total number of resolved batches by outcome",
			},
			[]string{"outcome"},
		),
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsebatch_operations_total",
				Help: "Total number of record operations by outcome",
			},
			[]string{"outcome"},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pulsebatch_retries_total",
				Help: "Total number of unit-of-work retries",
			},
		),
		BatchesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsebatch_batches_in_flight",
				Help: "Number of batches currently executing",
			},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulsebatch_batch_duration_seconds",
				Help:    "Batch execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
			},
		),
	}
}

func (m *Metrics) batchStarted() {
	if m == nil {
		return
	}
	m.BatchesInFlight.Inc()
}

func (m *Metrics) batchFinished(o batchOutcome) {
	if m == nil {
		return
	}
	m.BatchesInFlight.Dec()
	m.BatchDuration.Observe(o.duration.Seconds())
	m.OperationsTotal.WithLabelValues(outcomeCommitted).Add(float64(o.committed))
	m.OperationsTotal.WithLabelValues(outcomeFailed).Add(float64(o.failed))
}

func (m *Metrics) batchResolved(o batchOutcome, abandoned bool) {
	if m == nil {
		return
	}
	switch {
	case abandoned || o.abandoned:
		m.BatchesTotal.WithLabelValues(outcomeAbandoned).Inc()
	case o.batchFailed:
		m.BatchesTotal.WithLabelValues(outcomeFailed).Inc()
	default:
		m.BatchesTotal.WithLabelValues(outcomeCommitted).Inc()
	}
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) runFinished(mode string, terminated bool) {
	if m == nil {
		return
	}
	t := "false"
	if terminated {
		t = "true"
	}
	m.RunsTotal.WithLabelValues(mode, t).Inc()
}
