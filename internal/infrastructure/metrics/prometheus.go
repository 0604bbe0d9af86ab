// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hlspublish"

var (
	// JobsTotal counts jobs by terminal outcome.
	// Labels:
	//   - outcome: published, ingest_failed, transcode_failed, verify_failed, publish_failed
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of upload jobs by outcome",
		},
		[]string{"outcome"},
	)

	// JobsInFlight is the number of jobs currently inside the pipeline.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of upload jobs currently being processed",
		},
	)

	// StageDuration observes how long each pipeline stage took.
	// Labels:
	//   - stage: ingest, transcode, verify, publish
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 180, 600, 1800},
		},
		[]string{"stage"},
	)

	// UploadedObjectsTotal tracks per-file publish results.
	// Labels:
	//   - status: success, error
	UploadedObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_objects_total",
			Help:      "Total number of HLS files published to object storage",
		},
		[]string{"status"},
	)

	// EventsPublishedTotal tracks job event delivery to the broker.
	// Labels:
	//   - status: success, error
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of job events sent to the message broker",
		},
		[]string{"status"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update
	//   - table: jobs
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Job outcome constants.
const (
	OutcomePublished       = "published"
	OutcomeIngestFailed    = "ingest_failed"
	OutcomeTranscodeFailed = "transcode_failed"
	OutcomeVerifyFailed    = "verify_failed"
	OutcomePublishFailed   = "publish_failed"
)

// Generic result status constants.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TableJobs = "jobs"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
