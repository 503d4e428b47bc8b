package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SignalTrack/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles      *prometheus.CounterVec
	cycleTime   prometheus.Histogram
	pending     prometheus.Gauge
	transitions *prometheus.CounterVec
	retrains    *prometheus.CounterVec
	hitRate     prometheus.Gauge
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var (
	defaultRecorder *Recorder
	once            sync.Once
)

// New returns the process-wide recorder. Collectors register with the default
// registry once, so repeated calls share them.
func New() *Recorder {
	once.Do(func() {
		defaultRecorder = &Recorder{
			cycles: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigtrack_cycles_total",
					Help: "Tracking cycles by outcome",
				},
				[]string{"result"},
			),
			cycleTime: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sigtrack_cycle_duration_seconds",
					Help:    "Duration of a full tracking cycle",
					Buckets: prometheus.DefBuckets,
				},
			),
			pending: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sigtrack_pending_signals",
					Help: "Signals still pending after the last cycle",
				},
			),
			transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigtrack_transitions_total",
					Help: "Signal state transitions",
				},
				[]string{"from", "to"},
			),
			retrains: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigtrack_retrains_total",
					Help: "Retrain attempts by outcome",
				},
				[]string{"outcome"},
			),
			hitRate: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sigtrack_hit_rate",
					Help: "Hit rate of the latest performance snapshot",
				},
			),
			errorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigtrack_errors_total",
					Help: "Total number of errors encountered",
				},
				[]string{"type"},
			),
			latency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sigtrack_operation_duration_seconds",
					Help:    "Duration of operations in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
		}
	})
	return defaultRecorder
}

// RecordCycle records a finished tracking cycle.
func (r *Recorder) RecordCycle(s *models.CycleSummary, seconds float64) {
	result := "ok"
	if s.Errors > 0 {
		result = "partial"
	}
	r.cycles.WithLabelValues(result).Inc()
	r.cycleTime.Observe(seconds)
	r.pending.Set(float64(s.StillPending))
}

func (r *Recorder) RecordTransition(from, to models.State) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordRetrain counts a retrain outcome (promoted, rejected, skipped, failed).
func (r *Recorder) RecordRetrain(outcome string) {
	r.retrains.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordHitRate(rate float64) {
	r.hitRate.Set(rate)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
