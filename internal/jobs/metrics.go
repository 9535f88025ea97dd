package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for merchant simulation runs.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	bankruptcies *prometheus.CounterVec
	funded       *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the simulation metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Init exposes zero-valued series for product so rate and ratio alerts
// evaluate before the first failure or bankruptcy.
func (m *Metrics) Init(product string) {
	if m == nil || product == "" {
		return
	}
	m.runs.WithLabelValues(product, "success")
	m.runs.WithLabelValues(product, "failure")
	m.failures.WithLabelValues(product)
	m.bankruptcies.WithLabelValues(product)
	m.funded.WithLabelValues(product)
}

// Tracker provides lifecycle instrumentation helpers for a single merchant run.
type Tracker struct {
	metrics *Metrics
	product string
	start   time.Time
}

// Track spawns a tracker for a simulation of the given loan product.
func (m *Metrics) Track(product string) *Tracker {
	if m == nil {
		return &Tracker{product: product, start: time.Now()}
	}
	return &Tracker{metrics: m, product: product, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.product == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.product).Inc()
	}
	t.metrics.runs.WithLabelValues(t.product, status).Inc()
	t.metrics.duration.WithLabelValues(t.product).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome records whether the finished run drew credit and whether the
// merchant went bankrupt.
func (t *Tracker) Outcome(funded, bankrupt bool) {
	if t == nil || t.metrics == nil || t.product == "" {
		return
	}
	if funded {
		t.metrics.funded.WithLabelValues(t.product).Inc()
	}
	if bankrupt {
		t.metrics.bankruptcies.WithLabelValues(t.product).Inc()
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lendsim_simulations_total",
		Help: "Total merchant simulations partitioned by loan product and status.",
	}, []string{"product", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lendsim_simulations_failures_total",
		Help: "Total merchant simulations aborted by an invariant violation.",
	}, []string{"product"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lendsim_simulation_duration_seconds",
		Help:    "Duration in seconds of a single merchant simulation.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"product"})
	bankruptcies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lendsim_bankruptcies_total",
		Help: "Merchants that became insolvent within the horizon.",
	}, []string{"product"})
	funded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lendsim_funded_merchants_total",
		Help: "Merchants that drew at least one loan.",
	}, []string{"product"})
	registerer.MustRegister(runs, failures, duration, bankruptcies, funded)
	return &Metrics{runs: runs, failures: failures, duration: duration, bankruptcies: bankruptcies, funded: funded}
}
