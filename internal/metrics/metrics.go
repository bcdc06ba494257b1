package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the service's Prometheus instruments. A nil *Collector is a
// valid no-op.
type Collector struct {
	operations  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	moved       prometheus.Counter
	httpTotal   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Optimistic concurrency retries by operation",
		}, []string{"operation"}),
		moved: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_transferred_amount_total",
			Help: "Sum of amounts moved by completed transfers",
		}),
		httpTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "endpoint", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "endpoint"}),
	}
}

// Operation counts one finished ledger operation.
func (c *Collector) Operation(operation, outcome string) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
}

// Retry counts one conflict retry.
func (c *Collector) Retry(operation string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(operation).Inc()
}

// Transferred adds a completed transfer amount.
func (c *Collector) Transferred(amount int64) {
	if c == nil {
		return
	}
	c.moved.Add(float64(amount))
}

// HTTP records one served request.
func (c *Collector) HTTP(method, endpoint string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
