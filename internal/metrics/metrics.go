package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Indexing metrics
	LastIndexedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollupindexor_last_indexed_block",
			Help: "The last L1 block successfully indexed per stream",
		},
		[]string{"stream"},
	)

	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_blocks_processed_total",
			Help: "Total number of L1 blocks scanned per stream",
		},
		[]string{"stream"},
	)

	WindowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_windows_processed_total",
			Help: "Total number of committed scan windows per stream",
		},
		[]string{"stream"},
	)

	LogsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_logs_indexed_total",
			Help: "Total number of logs indexed per stream",
		},
		[]string{"stream"},
	)

	WindowProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollupindexor_window_processing_duration_seconds",
			Help:    "Time taken to fetch, normalize and store one scan window",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	IndexingRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollupindexor_indexing_rate_blocks_per_second",
			Help: "Current indexing rate in blocks per second",
		},
		[]string{"stream"},
	)

	NextGameIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollupindexor_next_game_index",
			Help: "The game index the next dispute game receives",
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollupindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollupindexor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollupindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollupindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func WindowProcessingTimeLog(stream string, duration time.Duration) {
	WindowProcessingTime.WithLabelValues(stream).Observe(duration.Seconds())
}

func LastIndexedBlockSet(stream string, blockNum uint64) {
	LastIndexedBlock.WithLabelValues(stream).Set(float64(blockNum))
}

func BlocksProcessedInc(stream string, count uint64) {
	BlocksProcessed.WithLabelValues(stream).Add(float64(count))
}

func WindowsProcessedInc(stream string) {
	WindowsProcessed.WithLabelValues(stream).Inc()
}

func LogsIndexedInc(stream string, count int) {
	LogsIndexed.WithLabelValues(stream).Add(float64(count))
}

func IndexingRateLog(stream string, rate float64) {
	IndexingRate.WithLabelValues(stream).Set(rate)
}

func NextGameIndexSet(index uint64) {
	NextGameIndex.Set(float64(index))
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
