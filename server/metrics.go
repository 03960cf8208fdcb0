package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's prometheus collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	emptyViews *prometheus.CounterVec
	rows       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_monitor",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "market_monitor",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		emptyViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market_monitor",
			Name:      "empty_views_total",
			Help:      "Views that matched no rows.",
		}, []string{"view"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "market_monitor",
			Name:      "loaded_rows",
			Help:      "Rows held in memory per table.",
		}, []string{"table"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.emptyViews, m.rows)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetRows records the size of a loaded table.
func (m *Metrics) SetRows(table string, n int) {
	m.rows.WithLabelValues(table).Set(float64(n))
}

// EmptyView counts a view that rendered the no-data state.
func (m *Metrics) EmptyView(view string) {
	m.emptyViews.WithLabelValues(view).Inc()
}

// Instrument records count and latency per matched route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
