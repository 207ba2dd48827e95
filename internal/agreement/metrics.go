package agreement

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricComputeTotal     = "quickgraph_agreement_compute_total"
	MetricUndefinedTotal   = "quickgraph_agreement_undefined_total"
	MetricComputeDuration  = "quickgraph_agreement_compute_duration_seconds"
	MetricUnresolvedLinks  = "quickgraph_agreement_unresolved_relations_total"
	MetricLastOverallScore = "quickgraph_agreement_last_overall_score"
)

// Metrics contains Prometheus metrics for agreement computation.
// All operations are thread-safe.
type Metrics struct {
	computeTotal     *prometheus.CounterVec
	undefinedTotal   *prometheus.CounterVec
	computeDuration  prometheus.Histogram
	unresolvedLinks  prometheus.Counter
	lastOverallScore prometheus.Gauge
}

// NewMetrics creates a new Metrics instance. The metrics are not
// registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		computeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricComputeTotal,
			Help: "Total number of agreement scores computed, by kind",
		}, []string{"kind"}),
		undefinedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricUndefinedTotal,
			Help: "Total number of agreement scores that could not be computed, by kind",
		}, []string{"kind"}),
		computeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricComputeDuration,
			Help:    "Histogram of project agreement computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		unresolvedLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUnresolvedLinks,
			Help: "Total number of relations skipped because an endpoint could not be resolved",
		}),
		lastOverallScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastOverallScore,
			Help: "Most recently computed overall project agreement (0-1)",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveScore records one computed score. A nil score counts as undefined.
func (m *Metrics) ObserveScore(kind Kind, score *float64) {
	if m == nil {
		return
	}
	m.computeTotal.WithLabelValues(string(kind)).Inc()
	if score == nil {
		m.undefinedTotal.WithLabelValues(string(kind)).Inc()
	}
}

// ObserveOverall sets the last overall score gauge when defined.
func (m *Metrics) ObserveOverall(score *float64) {
	if m == nil || score == nil {
		return
	}
	m.lastOverallScore.Set(*score)
}

// ObserveDuration records a computation duration sample.
func (m *Metrics) ObserveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.computeDuration.Observe(seconds)
}

// AddUnresolved counts relations skipped for unresolved endpoints.
func (m *Metrics) AddUnresolved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unresolvedLinks.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.computeTotal,
		m.undefinedTotal,
		m.computeDuration,
		m.unresolvedLinks,
		m.lastOverallScore,
	}
}
