package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry of a simulator process: HTTP metrics
// for the status server and gauges describing the current lender run.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	merchantsTotal  prometheus.Gauge
	merchantsDone   prometheus.Gauge
	portfolio       *prometheus.GaugeVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lendsim_http_requests_total",
		Help: "HTTP requests served by the status server, by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lendsim_http_request_duration_seconds",
		Help:    "Status server request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lendsim_run_merchants",
		Help: "Merchants scheduled in the current run.",
	})
	done := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lendsim_run_merchants_completed",
		Help: "Merchants whose simulation has completed in the current run.",
	})
	portfolio := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lendsim_portfolio_value",
		Help: "Aggregated portfolio figures of the last completed run.",
	}, []string{"product", "figure"})
	registry.MustRegister(requests, duration, total, done, portfolio)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		merchantsTotal:  total,
		merchantsDone:   done,
		portfolio:       portfolio,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveProgress publishes the run's completion counters.
func (m *Metrics) ObserveProgress(done, total int) {
	if m == nil {
		return
	}
	m.merchantsTotal.Set(float64(total))
	m.merchantsDone.Set(float64(done))
}

// ObservePortfolio publishes the named figures of a finished run.
func (m *Metrics) ObservePortfolio(product string, figures map[string]float64) {
	if m == nil {
		return
	}
	for name, v := range figures {
		m.portfolio.WithLabelValues(product, name).Set(v)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
