package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memcore_saves_total",
			Help: "Total number of memory save operations.",
		},
		[]string{"status", "mode"},
	)

	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memcore_save_duration_seconds",
			Help:    "End-to-end save pipeline duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memcore_searches_total",
			Help: "Total number of memory search operations.",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memcore_search_duration_seconds",
			Help:    "Search duration in seconds, embedding included.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CapabilityRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memcore_capability_retries_total",
			Help: "Retries against remote capabilities after transient failures.",
		},
		[]string{"capability"},
	)

	BackgroundQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memcore_background_queue_depth",
			Help: "Number of queued background save jobs.",
		},
	)

	BackgroundSaveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memcore_background_save_failures_total",
			Help: "Background save jobs that failed after retries.",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memcore_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		SavesTotal,
		SaveDuration,
		SearchesTotal,
		SearchDuration,
		CapabilityRetriesTotal,
		BackgroundQueueDepth,
		BackgroundSaveFailuresTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
