// Package metrics exposes Prometheus collectors for the HTTP API and the
// inventory workflows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zavod"

// Metrics holds the collectors of one server instance. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logins              *prometheus.CounterVec
	inventoryOperations *prometheus.CounterVec
	scrapSplits         prometheus.Counter
	transferDecisions   *prometheus.CounterVec
	requisitionDecision *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		inventoryOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_operations_total",
			Help:      "Inventory mutations by operation",
		}, []string{"operation"}),
		scrapSplits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrap_splits_total",
			Help:      "Inventory rows partially scraped into a new row",
		}),
		transferDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_decisions_total",
			Help:      "Transfer approvals and rejections",
		}, []string{"decision"}),
		requisitionDecision: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requisition_decisions_total",
			Help:      "Requisition approvals and rejections",
		}, []string{"decision"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts and times requests. It must wrap the ServeMux directly so
// the matched route pattern is available as the path label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// RecordInventoryOperation counts an inventory create, update or delete.
func (m *Metrics) RecordInventoryOperation(op string) {
	if m == nil {
		return
	}
	m.inventoryOperations.WithLabelValues(op).Inc()
}

// RecordScrapSplit counts a partial scrap.
func (m *Metrics) RecordScrapSplit() {
	if m == nil {
		return
	}
	m.scrapSplits.Inc()
}

// RecordTransferDecision counts an approved or rejected transfer.
func (m *Metrics) RecordTransferDecision(decision string) {
	if m == nil {
		return
	}
	m.transferDecisions.WithLabelValues(decision).Inc()
}

// RecordRequisitionDecision counts an approved or rejected requisition.
func (m *Metrics) RecordRequisitionDecision(decision string) {
	if m == nil {
		return
	}
	m.requisitionDecision.WithLabelValues(decision).Inc()
}
