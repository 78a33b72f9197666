package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
)

//go:embed 001_output_proposals.sql
var outputProposals string

//go:embed 001_arbitrum_send_roots.sql
var arbitrumSendRoots string

//go:embed 001_fault_dispute_games.sql
var faultDisputeGames string

//go:embed 002_reorg_journal.sql
var reorgJournal string

// OutputProposals creates the legacy OP Stack output table named table.
func OutputProposals(table string) db.Migration {
	return db.Migration{ID: "001_output_proposals.sql", SQL: outputProposals, Prefix: table}
}

// ArbitrumSendRoots creates the Arbitrum send root table named table.
func ArbitrumSendRoots(table string) db.Migration {
	return db.Migration{ID: "001_arbitrum_send_roots.sql", SQL: arbitrumSendRoots, Prefix: table}
}

// FaultDisputeGames creates the {table}_fault_dispute_games table.
func FaultDisputeGames(table string) db.Migration {
	return db.Migration{ID: "001_fault_dispute_games.sql", SQL: faultDisputeGames, Prefix: table}
}

// ReorgJournal creates the {table}_journal table used by the reorg follower.
func ReorgJournal(table string) db.Migration {
	return db.Migration{ID: "002_reorg_journal.sql", SQL: reorgJournal, Prefix: table}
}

// Run applies the given migrations.
func Run(log *logger.Logger, database *sql.DB, migs ...db.Migration) error {
	return db.RunMigrationsDB(log, database, migs)
}
