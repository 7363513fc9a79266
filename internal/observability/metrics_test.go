package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestObserveRequestAndStage(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveRequest("catalog", "ok", 20*time.Millisecond)
	c.ObserveRequest("catalog", "ok", 30*time.Millisecond)
	c.ObserveRequest("cutout", "error", time.Second)
	c.ObserveStage("detect", 5*time.Millisecond)

	if got := testutil.ToFloat64(c.ExternalRequests.WithLabelValues("catalog", "ok")); got != 2 {
		t.Fatalf("catalog ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ExternalRequests.WithLabelValues("cutout", "error")); got != 1 {
		t.Fatalf("cutout error = %v, want 1", got)
	}
	if n := histogramSampleCount(t, reg, "galaxy_roi_external_request_duration_seconds", map[string]string{"service": "catalog"}); n != 2 {
		t.Fatalf("catalog latency samples = %d, want 2", n)
	}
	if n := histogramSampleCount(t, reg, "galaxy_roi_stage_duration_seconds", map[string]string{"stage": "detect"}); n != 1 {
		t.Fatalf("detect stage samples = %d, want 1", n)
	}
}

func TestObserveCandidatesAndRuns(t *testing.T) {
	c, _ := newTestCollector(t)

	for _, r := range []string{"confirmed", "too_small", "too_small", "no_galaxy"} {
		c.ObserveCandidate(r)
	}
	c.ObserveRun(nil, 3)
	c.ObserveRun(errors.New("boom"), 0)

	if got := testutil.ToFloat64(c.Candidates.WithLabelValues("too_small")); got != 2 {
		t.Fatalf("too_small = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Runs.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(c.Runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("error runs = %v", got)
	}
	if got := testutil.ToFloat64(c.LastRunRegions); got != 3 {
		t.Fatalf("last run regions = %v, want 3", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.ObserveCandidate("confirmed")
	if got := testutil.ToFloat64(second.Candidates.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("collectors not shared: %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveStage("x", time.Millisecond)
	c.ObserveRequest("x", "ok", time.Millisecond)
	c.ObserveCandidate("x")
	c.ObserveRun(nil, 1)

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	c, _ := newTestCollector(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	h := c.Middleware(mux)
	for _, path := range []string{"/health", "/health", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET /health", "200")); got != 2 {
		t.Fatalf("GET /health 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues(UnmatchedRoute, "404")); got != 1 {
		t.Fatalf("unmatched 404 = %v, want 1", got)
	}

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "galaxy_roi_http_requests_total") {
		t.Fatalf("metrics output missing http counter: %s", rr.Body.String())
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestMiddlewareRouteLabelsStayBounded(t *testing.T) {
	c, _ := newTestCollector(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /rois/{id}", func(w http.ResponseWriter, r *http.Request) {})
	h := c.Middleware(mux)

	for i := 0; i < 500; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scan-"+strconv.Itoa(i), nil))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rois/"+strconv.Itoa(i), nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/health", nil))

	// unmatched/404, "GET /rois/{id}"/200, unmatched/405
	if n := testutil.CollectAndCount(c.HTTPRequests); n != 3 {
		t.Fatalf("http series = %d, want 3", n)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues(UnmatchedRoute, "404")); got != 500 {
		t.Fatalf("unmatched 404 = %v, want 500", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET /rois/{id}", "200")); got != 500 {
		t.Fatalf("GET /rois/{id} = %v, want 500", got)
	}
}
