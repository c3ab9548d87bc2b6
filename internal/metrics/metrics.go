package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_engine_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// DispatchPasses counts dispatch passes by trigger and outcome.
	DispatchPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_engine_dispatch_passes_total",
			Help: "Number of dispatch passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_engine_dispatch_duration_seconds",
			Help:    "Duration of completed dispatch passes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"trigger"},
	)

	// RecipientOutcomes counts per-recipient send results (sent, failed).
	RecipientOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_engine_recipient_outcomes_total",
			Help: "Per-recipient send outcomes",
		},
		[]string{"outcome"},
	)

	TrackingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_engine_tracking_events_total",
			Help: "Tracking events by kind and result",
		},
		[]string{"kind", "result"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_engine_job_runs_total",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_engine_job_duration_seconds",
			Help:    "Scheduled job run durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

var once sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, RequestDuration,
			DispatchPasses, DispatchDuration, RecipientOutcomes,
			TrackingEvents, JobRuns, JobDuration,
		)
	})
}

// Middleware records request counts and latencies labelled by chi route
// pattern, so ids in the path do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
