// Package metrics holds the Prometheus collectors of the billing service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is passed to the components that record into it. Build one per
// registry; tests use a fresh prometheus.NewRegistry().
type Metrics struct {
	registry *prometheus.Registry

	PaymentsRecorded  prometheus.Counter
	CyclesAdvanced    *prometheus.CounterVec
	ConcurrentRetries prometheus.Counter
	ImportRows        *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	SheetsMirrored    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New registers every collector on registry. A nil registry gets a new one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		PaymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobros_payments_recorded_total",
			Help: "Payments persisted.",
		}),
		CyclesAdvanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobros_cycles_advanced_total",
			Help: "Next payment dates moved forward by a recorded payment.",
		}, []string{"frequency"}),
		ConcurrentRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cobros_payment_conflict_retries_total",
			Help: "Payment recordings retried after the client's next date changed underneath them.",
		}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobros_import_rows_total",
			Help: "Client import rows by result.",
		}, []string{"result"}), // imported | failed
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobros_events_published_total",
			Help: "payment.recorded events by publish result.",
		}, []string{"result"}),
		SheetsMirrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cobros_sheets_mirrored_total",
			Help: "Payments appended to the spreadsheet mirror by result.",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cobros_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.PaymentsRecorded,
		m.CyclesAdvanced,
		m.ConcurrentRetries,
		m.ImportRows,
		m.EventsPublished,
		m.SheetsMirrored,
		m.RequestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
