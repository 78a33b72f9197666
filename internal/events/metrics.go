package events

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DisputeGamesEnriched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollupindexor_dispute_games_enriched_total",
			Help: "Total number of enriched dispute games by acceptance",
		},
		[]string{"accepted"},
	)

	ArbitrumRootsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollupindexor_arbitrum_roots_resolved_total",
			Help: "Total number of send roots resolved against the L2 chain",
		},
	)
)

func DisputeGameAcceptedInc(accepted bool) {
	DisputeGamesEnriched.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func ArbitrumRootResolvedInc() {
	ArbitrumRootsResolved.Inc()
}
