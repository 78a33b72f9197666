package common

const (
	ComponentEngine          = "engine"
	ComponentCheckpointStore = "checkpoint-store"
	ComponentRPC             = "rpc"
	ComponentDisputeGames    = "dispute-games"
	ComponentReorgFollower   = "reorg-follower"
	ComponentReorgConsumer   = "reorg-consumer"
	ComponentMetrics         = "metrics"
	ComponentMaintenance     = "db-maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentEngine:          {},
	ComponentCheckpointStore: {},
	ComponentRPC:             {},
	ComponentDisputeGames:    {},
	ComponentReorgFollower:   {},
	ComponentReorgConsumer:   {},
	ComponentMetrics:         {},
	ComponentMaintenance:     {},
}
