// Package metrics provides Prometheus instrumentation for bulk operations.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("transfer")
//	n, err := s.CopyFrom(ctx, req, src)
//	metrics.PhaseLatency.WithLabelValues("insert", "transfer").Observe(timer.Stop().Seconds())
//	metrics.RowsTransferred.WithLabelValues("insert", "items").Add(float64(n))
//
// A Collector binds the operation and table labels once so processors do
// not repeat them at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// RowsTransferred counts rows moved through the native bulk copy.
	// Labels: operation (insert/delete), table
	RowsTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkflow_rows_transferred_total",
			Help: "Total number of rows sent through bulk copy",
		},
		[]string{"operation", "table"},
	)

	// RowsAffected counts rows reported by the commit phase.
	RowsAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkflow_rows_affected_total",
			Help: "Total number of rows inserted or deleted by bulk operations",
		},
		[]string{"operation", "table"},
	)

	// Operations counts bulk operations by outcome.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkflow_operations_total",
			Help: "Total number of bulk operations",
		},
		[]string{"operation", "status"},
	)

	// PhaseLatency tracks the duration of each processor phase in seconds.
	// Labels: operation, phase (prepare/transfer/commit/cleanup)
	PhaseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkflow_phase_duration_seconds",
			Help:    "Duration of bulk processor phases",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		},
		[]string{"operation", "phase"},
	)

	// BatchesRouted counts batches executed by the router.
	// Labels: mode (bulk/statement), state (added/modified/deleted)
	BatchesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkflow_batches_routed_total",
			Help: "Total number of command batches by execution mode",
		},
		[]string{"mode", "state"},
	)

	// ConcurrencyConflicts counts batches whose affected-row count did not
	// match the number of commands.
	ConcurrencyConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkflow_concurrency_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts",
		},
	)
)

// Collector records metrics for one operation against one table.
type Collector struct {
	operation string
	table     string
}

// NewCollector creates a collector bound to an operation and table.
func NewCollector(operation, table string) *Collector {
	return &Collector{operation: operation, table: table}
}

// ObservePhase records the duration of a phase.
func (c *Collector) ObservePhase(phase string, d time.Duration) {
	PhaseLatency.WithLabelValues(c.operation, phase).Observe(d.Seconds())
}

// AddTransferred records rows sent through bulk copy.
func (c *Collector) AddTransferred(n int64) {
	RowsTransferred.WithLabelValues(c.operation, c.table).Add(float64(n))
}

// AddAffected records rows changed by the commit phase.
func (c *Collector) AddAffected(n int64) {
	RowsAffected.WithLabelValues(c.operation, c.table).Add(float64(n))
}

// Done records the outcome of the operation.
func (c *Collector) Done(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	Operations.WithLabelValues(c.operation, status).Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
