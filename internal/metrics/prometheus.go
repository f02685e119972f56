package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dasos_analysis_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	AnalysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_analysis_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	SubjectsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_subjects_analyzed_total",
			Help: "Subjects processed by analysis runs, by outcome",
		},
		[]string{"outcome"},
	)

	RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_records_ingested_total",
			Help: "Subject-year records stored",
		},
		[]string{"source"},
	)

	RecordsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_records_rejected_total",
			Help: "Subject-year records rejected during ingestion",
		},
		[]string{"source"},
	)

	APIFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dasos_academic_api_fetch_duration_seconds",
			Help:    "Academic API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	APIFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_academic_api_fetch_total",
			Help: "Academic API payload lookups by result",
		},
		[]string{"result"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_llm_tokens_used",
			Help: "Total LLM tokens used by the narrator",
		},
		[]string{"model", "type"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dasos_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dasos_http_requests_total",
			Help: "REST requests by route and status class",
		},
		[]string{"route", "status"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AnalysisDuration,
			AnalysisRunsTotal,
			SubjectsAnalyzed,
			RecordsIngested,
			RecordsRejected,
			APIFetchDuration,
			APIFetchTotal,
			CacheHits,
			CacheMisses,
			LLMTokensUsed,
			CircuitBreakerState,
			HTTPRequests,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
