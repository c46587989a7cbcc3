package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "wafscan"
)

var (
	scanDurationBuckets = []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600}

	// Scan Metrics
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Time taken for a full scan run to complete.",
		Buckets:   scanDurationBuckets,
	})

	ScanWorkUnitsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scan_work_units_in_flight",
		Help:      "Number of (subscription, check) work units currently being evaluated.",
	})

	ComplianceScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "compliance_score",
		Help:      "Compliance score of the last scan, per pillar and overall.",
	}, []string{"pillar"})

	// Check Metrics
	CheckEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_evaluations_total",
		Help:      "Number of work units resolved, by final status.",
	}, []string{"pillar", "status"})

	CheckEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "check_evaluation_duration_seconds",
		Help:      "Time taken to resolve a work unit, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pillar"})

	CheckRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_retries_total",
		Help:      "Number of evaluator retries after transient errors.",
	}, []string{"pillar"})

	// Query Cache Metrics
	QueryCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_cache_requests_total",
		Help:      "Query cache lookups by result.",
	}, []string{"result"})

	QueryCacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_cache_evictions_total",
		Help:      "Query cache entries removed, by reason.",
	}, []string{"reason"})

	QueryCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "query_cache_entries",
		Help:      "Number of entries held in the in-memory query cache.",
	})

	// Inventory Metrics
	InventoryQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_queries_total",
		Help:      "Inventory queries sent to the backing source, by outcome.",
	}, []string{"source", "outcome"})

	InventoryQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inventory_query_duration_seconds",
		Help:      "Latency of inventory queries against the backing source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)
