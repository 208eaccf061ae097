package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/netprobe/internal/scrape"
)

const namespace = "netprobe"

// Collector records session and interception telemetry on its own registry.
type Collector struct {
	registry *prometheus.Registry

	sessions *prometheus.CounterVec
	verdicts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	captured prometheus.Histogram
	inFlight prometheus.Gauge
	rejected prometheus.Counter
}

var _ scrape.Recorder = (*Collector)(nil)

// New registers the collectors, plus the Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Scrape sessions by outcome.",
		}, []string{"outcome"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intercepted_requests_total",
			Help:      "Intercepted browser requests by verdict.",
		}, []string{"verdict"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of scrape sessions, launch to teardown.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"outcome"}),
		captured: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "captured_requests",
			Help:      "Requests recorded per session.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_in_flight",
			Help:      "Sessions currently holding a browser.",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Scrape requests abandoned while waiting for admission.",
		}),
	}
}

// ObserveVerdict counts one interception decision.
func (c *Collector) ObserveVerdict(verdict string) {
	c.verdicts.WithLabelValues(verdict).Inc()
}

// ObserveSession records a finished session.
func (c *Collector) ObserveSession(outcome string, elapsed time.Duration, captured int) {
	c.sessions.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome == scrape.OutcomeSuccess {
		c.captured.Observe(float64(captured))
	}
}

// SessionStarted and SessionFinished track admitted sessions.
func (c *Collector) SessionStarted()  { c.inFlight.Inc() }
func (c *Collector) SessionFinished() { c.inFlight.Dec() }

// Rejected counts a request that gave up before admission.
func (c *Collector) Rejected() { c.rejected.Inc() }

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
