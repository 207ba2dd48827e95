package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/quickgraph/internal/export"
)

// Metric names as constants for consistency.
const (
	MetricOperationsTotal   = "quickgraph_dashboard_operations_total"
	MetricOperationDuration = "quickgraph_dashboard_operation_duration_seconds"
	MetricCacheLookups      = "quickgraph_dashboard_adjudication_cache_total"
	MetricExportRecords     = "quickgraph_dashboard_export_records_total"
)

// Metrics contains Prometheus metrics for dashboard operations.
// All operations are thread-safe.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	exportRecords     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance. The metrics are not
// registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricOperationsTotal,
			Help: "Total number of dashboard operations, by operation and status",
		}, []string{"operation", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricOperationDuration,
			Help:    "Histogram of dashboard operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheLookups,
			Help: "Total number of adjudication cache lookups, by result",
		}, []string{"result"}),
		exportRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExportRecords,
			Help: "Total number of export records, by outcome",
		}, []string{"outcome"}),
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

// ObserveOperation records one completed operation.
func (m *Metrics) ObserveOperation(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(seconds)
}

// IncCache counts an adjudication cache lookup ("hit" or "miss").
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// AddExportRecords counts built and failed export records.
func (m *Metrics) AddExportRecords(s export.Stats) {
	if m == nil {
		return
	}
	m.exportRecords.WithLabelValues("built").Add(float64(s.Built))
	m.exportRecords.WithLabelValues("failed").Add(float64(s.Failed))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.cacheLookups,
		m.exportRecords,
	}
}
