package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_store_rows_inserted_total",
			Help: "Total number of rows inserted by table",
		},
		[]string{"table"},
	)

	rowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_store_rows_deleted_total",
			Help: "Total number of rows deleted on chain reorganizations by table",
		},
		[]string{"table"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollupindexor_store_query_duration_seconds",
			Help:    "Duration of read port queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)

func RowsInsertedAdd(table string, n int) {
	if n > 0 {
		rowsInserted.WithLabelValues(table).Add(float64(n))
	}
}

func RowsDeletedAdd(table string, n int64) {
	if n > 0 {
		rowsDeleted.WithLabelValues(table).Add(float64(n))
	}
}

func QueryDuration(query string, start time.Time) {
	queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
