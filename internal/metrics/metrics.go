// Package metrics exposes build and request counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/csvtable/internal/core"
)

const namespace = "csvtable"

// Recorder owns a registry so tests and multiple servers do not share
// global state.
type Recorder struct {
	reg *prometheus.Registry

	builds      *prometheus.CounterVec
	rows        *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	cache       *prometheus.CounterVec
	requests    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
}

// New creates a Recorder with process and Go runtime collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Table builds by schema, mode and outcome.",
		}, []string{"schema", "mode", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Data rows by schema and result (converted, failed, skipped).",
		}, []string{"schema", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Bytes of delimited input read.",
		}, []string{"schema"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of table builds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"schema"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_failures_total",
			Help:      "Row failures by error kind.",
		}, []string{"schema", "kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome (hit, miss, error).",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	r.reg.MustRegister(
		r.builds, r.rows, r.bytes, r.duration, r.failures, r.cache, r.requests, r.reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveBuild records the outcome of one build. res may be nil when err
// is set.
func (r *Recorder) ObserveBuild(schema string, forgiving bool, res *core.Result, err error) {
	if r == nil {
		return
	}
	mode := "strict"
	if forgiving {
		mode = "forgiving"
	}
	outcome := "ok"
	switch {
	case err != nil || res == nil:
		outcome = "error"
	case res.Truncated:
		outcome = "truncated"
	case len(res.Failures) > 0:
		outcome = "partial"
	}
	r.builds.WithLabelValues(schema, mode, outcome).Inc()
	if res == nil {
		return
	}

	r.rows.WithLabelValues(schema, "converted").Add(float64(res.Table.Len()))
	r.rows.WithLabelValues(schema, "failed").Add(float64(len(res.Failures)))
	r.rows.WithLabelValues(schema, "skipped").Add(float64(res.Skipped))
	r.bytes.WithLabelValues(schema).Add(float64(res.Bytes))
	r.duration.WithLabelValues(schema).Observe(res.Duration.Seconds())
	for _, f := range res.Failures {
		r.failures.WithLabelValues(schema, string(f.Kind)).Inc()
	}
}

// ObserveCache records a cache lookup outcome.
func (r *Recorder) ObserveCache(outcome string) {
	if r == nil {
		return
	}
	r.cache.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served request.
func (r *Recorder) ObserveRequest(route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.reqDuration.WithLabelValues(route).Observe(d.Seconds())
}
