/*
Package metrics exposes Prometheus instrumentation.

METRICS:
  billing_generation_runs_total{mode,outcome}     preview/commit runs
  billing_bills_generated_total                   bills written by commits
  billing_generation_duration_seconds{mode}       run latency
  http_requests_total{method,route,status}        API traffic
  http_request_duration_seconds{method,route}     API latency

All collectors register on the default registry; Handler serves it.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/condo-billing/billing"
)

// Generation metrics
var (
	GenerationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_generation_runs_total",
			Help: "Billing preview and commit runs by outcome",
		},
		[]string{"mode", "outcome"},
	)

	BillsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_bills_generated_total",
			Help: "Bills written by successful commits",
		},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_generation_duration_seconds",
			Help:    "Billing run latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)
)

// HTTP metrics
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder feeds generation runs into the collectors above.
type Recorder struct{}

var _ billing.Observer = Recorder{}

// ObserveGeneration implements billing.Observer.
func (Recorder) ObserveGeneration(mode, outcome string, bills int, elapsed time.Duration) {
	GenerationRuns.WithLabelValues(mode, outcome).Inc()
	GenerationDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if mode == "commit" && outcome == "ok" {
		BillsGenerated.Add(float64(bills))
	}
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
