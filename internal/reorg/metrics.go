package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollupindexor_reorgs_detected_total",
			Help: "Total number of L1 reorganizations detected",
		},
	)

	reorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollupindexor_reorg_depth_blocks",
			Help:    "Depth of L1 reorganizations in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	reorgLastDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollupindexor_reorg_last_detected_timestamp",
			Help: "Unix timestamp of last reorg detection",
		},
	)

	notificationsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_reorg_notifications_total",
			Help: "Total number of notifications handled by kind",
		},
		[]string{"kind"},
	)

	journalBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollupindexor_reorg_journal_blocks",
			Help: "Number of blocks held in the reorg journal",
		},
	)
)

func ReorgDetectedLog(depth uint64) {
	reorgsDetected.Inc()
	reorgDepth.Observe(float64(depth))
	reorgLastDetected.Set(float64(time.Now().UTC().Unix()))
}

func NotificationHandledInc(kind string) {
	notificationsHandled.WithLabelValues(kind).Inc()
}

func JournalBlocksSet(count int) {
	journalBlocks.Set(float64(count))
}
