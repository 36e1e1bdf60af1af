package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgsqueeze_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Compression metrics
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_compressions_total",
			Help: "Total number of image compressions",
		},
		[]string{"status"}, // success, error
	)

	CompressionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgsqueeze_compression_duration_seconds",
			Help:    "Compression duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"}, // jpeg, webp
	)

	CompressionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgsqueeze_compression_bytes",
			Help:    "Compression input/output bytes",
			Buckets: []float64{1024, 10240, 51200, 102400, 512000, 1048576, 5242880, 10485760},
		},
		[]string{"direction"}, // input, output
	)

	// Quality search metrics
	QualityUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imgsqueeze_quality_used",
			Help:    "Encoder quality selected by the size search",
			Buckets: prometheus.LinearBuckets(20, 5, 14),
		},
	)

	EncodeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imgsqueeze_encode_attempts",
			Help:    "Number of encodes performed per size search",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	TargetOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_target_outcomes_total",
			Help: "Size searches by whether the target size was met",
		},
		[]string{"met"}, // true, false
	)

	// Queue/Pool metrics
	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgsqueeze_worker_pool_queue_size",
			Help: "Current number of jobs in worker pool queue",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgsqueeze_worker_pool_active_jobs",
			Help: "Current number of active compression jobs",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_rate_limit_exceeded_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
		[]string{"ip_prefix"}, // First octet for privacy
	)

	// Concurrency metrics
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgsqueeze_concurrent_requests",
			Help: "Current number of concurrent requests being processed",
		},
	)

	ConcurrencyLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgsqueeze_concurrency_limit_exceeded_total",
			Help: "Total number of requests rejected due to concurrency limit",
		},
	)

	// Memory metrics
	MemoryPoolHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_memory_pool_hits_total",
			Help: "Total number of encode buffer pool hits",
		},
		[]string{"size"}, // small, medium, large
	)

	MemoryPoolMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgsqueeze_memory_pool_misses_total",
			Help: "Total number of encode buffer pool misses",
		},
		[]string{"size"}, // small, medium, large
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCompression records a finished compression
func RecordCompression(status, format string, duration float64, inputBytes, outputBytes int) {
	CompressionsTotal.WithLabelValues(status).Inc()
	CompressionDuration.WithLabelValues(format).Observe(duration)
	CompressionBytes.WithLabelValues("input").Observe(float64(inputBytes))
	if outputBytes > 0 {
		CompressionBytes.WithLabelValues("output").Observe(float64(outputBytes))
	}
}

// RecordSearch records the outcome of a quality search
func RecordSearch(quality, attempts int, met bool) {
	QualityUsed.Observe(float64(quality))
	EncodeAttempts.Observe(float64(attempts))
	if met {
		TargetOutcomes.WithLabelValues("true").Inc()
	} else {
		TargetOutcomes.WithLabelValues("false").Inc()
	}
}

// UpdateWorkerPoolMetrics updates worker pool metrics
func UpdateWorkerPoolMetrics(queueSize, activeJobs int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveJobs.Set(float64(activeJobs))
}

// RecordRateLimitExceeded records a rate limit rejection
func RecordRateLimitExceeded(ipPrefix string) {
	RateLimitExceeded.WithLabelValues(ipPrefix).Inc()
}

// UpdateConcurrency updates concurrent request gauge
func UpdateConcurrency(count int) {
	ConcurrentRequests.Set(float64(count))
}

// RecordConcurrencyLimitExceeded records a concurrency limit rejection
func RecordConcurrencyLimitExceeded() {
	ConcurrencyLimitExceeded.Inc()
}

// RecordPoolHit records a buffer pool hit
func RecordPoolHit(size string) {
	MemoryPoolHits.WithLabelValues(size).Inc()
}

// RecordPoolMiss records a buffer pool miss
func RecordPoolMiss(size string) {
	MemoryPoolMisses.WithLabelValues(size).Inc()
}
