// Package metrics owns the prometheus registry and the collectors for the
// HTTP surface and the admission gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ahuahuachi/PrivateBin/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	panics    prometheus.Counter
	buildInfo *prometheus.GaugeVec

	admissionsTotal *prometheus.CounterVec
	tableEntries    prometheus.Gauge
	storeFailures   prometheus.Counter
	floodDenied     prometheus.Counter

	pastesAccepted prometheus.Counter
}

// New returns a fresh registry + standard collectors + app metrics.
// Safe labels only (method, route, code) to avoid cardinality explosions.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered http handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "go_version"}),
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_admissions_total",
			Help: "Admission gate decisions by outcome",
		}, []string{"decision"}),
		tableEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traffic_table_entries",
			Help: "Rate table size after the most recent admission check",
		}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "traffic_store_failures_total",
			Help: "Admission checks that failed on rate table I/O",
		}),
		floodDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flood_requests_denied_total",
			Help: "Requests rejected by the per-IP burst limiter",
		}),
		pastesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pastes_accepted_total",
			Help: "Pastes accepted through the admission gate",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.panics,
		m.buildInfo,
		m.admissionsTotal,
		m.tableEntries,
		m.storeFailures,
		m.floodDenied,
		m.pastesAccepted,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.panics.Inc() }

// set once at startup
func (m *ServerMetrics) SetBuildInfoFromVersion(vi version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":        version.AppName,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"go_version": vi.GoVersion,
	}).Set(1)
}

func (m *ServerMetrics) IncAdmission(decision string) {
	m.admissionsTotal.WithLabelValues(decision).Inc()
}

func (m *ServerMetrics) SetTableEntries(n int64) {
	m.tableEntries.Set(float64(n))
}

func (m *ServerMetrics) IncStoreFailure() { m.storeFailures.Inc() }

func (m *ServerMetrics) IncFloodDenied() { m.floodDenied.Inc() }

func (m *ServerMetrics) IncPasteAccepted() { m.pastesAccepted.Inc() }

