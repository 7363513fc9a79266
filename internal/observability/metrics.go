// Package observability carries the Prometheus metrics and OpenTelemetry
// tracing setup for the pipeline and its HTTP surface.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Collector bundles the pipeline metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	StageDurations   *prometheus.HistogramVec
	ExternalRequests *prometheus.CounterVec
	ExternalDuration *prometheus.HistogramVec
	Candidates       *prometheus.CounterVec
	Runs             *prometheus.CounterVec
	LastRunRegions   prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against one registry returns the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "galaxy_roi_stage_duration_seconds",
		Help:    "Pipeline stage latency in seconds.",
		Buckets: latencyBuckets,
	}, []string{"stage"}), "galaxy_roi_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_roi_external_requests_total",
		Help: "Calls to external services, labeled by service and outcome.",
	}, []string{"service", "outcome"}), "galaxy_roi_external_requests_total")
	if err != nil {
		return nil, err
	}

	requestDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "galaxy_roi_external_request_duration_seconds",
		Help:    "External service latency in seconds, retries included.",
		Buckets: latencyBuckets,
	}, []string{"service"}), "galaxy_roi_external_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	candidates, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_roi_candidates_total",
		Help: "Detected candidates by filter outcome.",
	}, []string{"reason"}), "galaxy_roi_candidates_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_roi_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"}), "galaxy_roi_runs_total")
	if err != nil {
		return nil, err
	}

	lastRegions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "galaxy_roi_last_run_regions",
		Help: "Confirmed regions in the most recent successful run.",
	}), "galaxy_roi_last_run_regions")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_roi_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"}), "galaxy_roi_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		StageDurations:   stages,
		ExternalRequests: requests,
		ExternalDuration: requestDurations,
		Candidates:       candidates,
		Runs:             runs,
		LastRunRegions:   lastRegions,
		HTTPRequests:     httpRequests,
	}, nil
}

func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRequest(service, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ExternalRequests.WithLabelValues(service, outcome).Inc()
	c.ExternalDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveCandidate(reason string) {
	if c == nil {
		return
	}
	c.Candidates.WithLabelValues(reason).Inc()
}

// ObserveRun records a finished run; regions is only used on success.
func (c *Collector) ObserveRun(err error, regions int) {
	if c == nil {
		return
	}
	if err != nil {
		c.Runs.WithLabelValues("error").Inc()
		return
	}
	c.Runs.WithLabelValues("ok").Inc()
	c.LastRunRegions.Set(float64(regions))
}

// UnmatchedRoute labels requests no ServeMux pattern matched.
const UnmatchedRoute = "unmatched"

// Middleware counts requests served by next, labelled by the ServeMux
// pattern that handled them. The mux sets r.Pattern on the request it is
// handed, so next must receive r itself.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = UnmatchedRoute
		}
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
