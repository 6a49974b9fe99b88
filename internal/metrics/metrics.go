// Package metrics holds the Prometheus collectors shared by the API server
// and the matching worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsEnqueued counts enqueue requests, labeled by result:
	// "accepted", "duplicate" or "error".
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchengine_jobs_enqueued_total",
		Help: "Matching jobs submitted to the queue",
	}, []string{"result"})

	// JobsProcessed counts settled attempts, labeled by outcome:
	// "completed", "retried", "failed", "released" or "lock_lost".
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchengine_jobs_processed_total",
		Help: "Matching job attempts by outcome",
	}, []string{"outcome"})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchengine_job_duration_seconds",
		Help:    "Wall time of one matching job attempt",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	CandidatesEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchengine_candidates_evaluated_total",
		Help: "Candidates passed to the scoring engine",
	})

	CandidatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchengine_candidates_skipped_total",
		Help: "Candidates skipped because the pair was scanned recently",
	})

	// MatchesUpserted counts potential match writes, labeled by outcome:
	// "created", "updated" or "unchanged".
	MatchesUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchengine_matches_upserted_total",
		Help: "Potential match rows written",
	}, []string{"outcome"})

	// QueueDepth mirrors the queue counters, labeled by job status.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchengine_queue_jobs",
		Help: "Jobs in the matching queue by status",
	}, []string{"status"})

	StalledJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchengine_stalled_jobs_total",
		Help: "Stalled jobs found by the sweeper, labeled by action",
	}, []string{"action"})

	WebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchengine_ws_clients",
		Help: "Connected WebSocket clients",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchengine_http_requests_total",
		Help: "API requests by method, route and status",
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		JobsEnqueued,
		JobsProcessed,
		JobDuration,
		CandidatesEvaluated,
		CandidatesSkipped,
		MatchesUpserted,
		QueueDepth,
		StalledJobs,
		WebSocketClients,
		HTTPRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
