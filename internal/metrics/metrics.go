package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResourceLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_resource_loads_total",
			Help: "Resource load attempts per resource, stage (cache, remote, fallback) and outcome",
		},
		[]string{"resource", "stage", "outcome"},
	)

	RemoteFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxratemanager_remote_fetch_duration_seconds",
			Help:    "Duration of single remote location fetches per resource",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	PayloadReclaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_payload_reclaims_total",
			Help: "In-memory payloads dropped by TTL or pool eviction per resource",
		},
		[]string{"resource"},
	)

	ListenerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_listener_failures_total",
			Help: "Loader listeners that panicked while handling a notification",
		},
		[]string{"resource"},
	)

	RateQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_rate_queries_total",
			Help: "Rate queries per provider and outcome (found, not_found, error)",
		},
		[]string{"provider", "outcome"},
	)

	RateTableEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxratemanager_rate_table_dates",
			Help: "Number of valuation dates held per rate table",
		},
		[]string{"table"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxratemanager_request_duration_seconds",
			Help:    "HTTP request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_request_errors_total",
			Help: "Total number of error responses per path and code",
		},
		[]string{"path", "code"},
	)
)

// ObserveLoad records the outcome of one load stage.
func ObserveLoad(resource, stage string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	ResourceLoadsTotal.WithLabelValues(resource, stage, outcome).Inc()
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxratemanager_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxratemanager_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxratemanager_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
