package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch item results.
const (
	BatchItemSucceeded = "succeeded"
	BatchItemFailed    = "failed"
	BatchItemSkipped   = "skipped"
)

// SequencerMetrics are the Prometheus collectors scraped from /metrics for the
// ledger writer.
type SequencerMetrics struct {
	submitDuration *prometheus.HistogramVec
	lastSequence   *prometheus.GaugeVec
	lockWait       prometheus.Histogram
	batchItems     *prometheus.CounterVec
}

var (
	sequencerMetricsOnce sync.Once
	sequencerMetrics     *SequencerMetrics
)

// NewSequencerMetrics returns the process wide collectors registered on the
// default registerer.
func NewSequencerMetrics(cfg Config) *SequencerMetrics {
	sequencerMetricsOnce.Do(func() {
		sequencerMetrics = newSequencerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sequencerMetrics
}

func newSequencerMetrics(registerer prometheus.Registerer, cfg Config) *SequencerMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "tracechain"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SequencerMetrics{
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tracechain_ledger_submit_duration_seconds",
			Help:        "Time from ledger submission to confirmation or error.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		lastSequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tracechain_ledger_last_sequence",
			Help:        "Last sequence number confirmed for the signing account.",
			ConstLabels: constLabels,
		}, []string{"account"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "tracechain_sequencer_lock_wait_seconds",
			Help:        "Time spent waiting for the signing account writer lock.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tracechain_batch_items_total",
			Help:        "Batch items by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}
	registerer.MustRegister(m.submitDuration, m.lastSequence, m.lockWait, m.batchItems)
	return m
}

func (m *SequencerMetrics) ObserveSubmit(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submitDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *SequencerMetrics) SetLastSequence(account string, sequence uint64) {
	if m == nil {
		return
	}
	m.lastSequence.WithLabelValues(strings.ToLower(account)).Set(float64(sequence))
}

func (m *SequencerMetrics) ObserveLockWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(elapsed.Seconds())
}

func (m *SequencerMetrics) AddBatchItems(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchItems.WithLabelValues(result).Add(float64(n))
}
