package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/migrations"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
)

// ErrNotFound is returned by the read port when no row matches.
var ErrNotFound = errors.New("not found")

// OperationLocker serializes writes with database maintenance.
type OperationLocker interface {
	AcquireOperationLock() func()
}

// Store owns the tables of one network: the output (or send root) table and,
// for FDG eligible networks, the dispute game table.
type Store struct {
	db         *sql.DB
	kind       chain.Kind
	table      string
	gamesTable string
	locker     OperationLocker
	log        *logger.Logger
}

// New creates the network's tables if absent and returns a store over them.
func New(database *sql.DB, network *config.NetworkConfig, family chain.Family, log *logger.Logger) (*Store, error) {
	s := &Store{
		db:    database,
		kind:  family.Kind(),
		table: network.Table,
		log:   log,
	}

	var migs []db.Migration
	if family.IsArbitrum() {
		migs = append(migs, migrations.ArbitrumSendRoots(network.Table))
	} else {
		migs = append(migs, migrations.OutputProposals(network.Table))
	}
	if family.HasDisputeGames() {
		s.gamesTable = network.DisputeGamesTable()
		migs = append(migs, migrations.FaultDisputeGames(network.Table))
	}

	if err := migrations.Run(log, database, migs...); err != nil {
		return nil, fmt.Errorf("failed to create tables for %s: %w", network.Table, err)
	}

	return s, nil
}

// SetOperationLocker makes write transactions hold locker's operation lock.
func (s *Store) SetOperationLocker(locker OperationLocker) {
	s.locker = locker
}

// DB returns the database the store writes to.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the output or send root table name.
func (s *Store) Table() string {
	return s.table
}

// GamesTable returns the dispute game table name, empty when the network has none.
func (s *Store) GamesTable() string {
	return s.gamesTable
}

// tableFor returns the table a stream writes to.
func (s *Store) tableFor(stream chain.StreamKind) (string, error) {
	switch stream {
	case chain.StreamLegacy, chain.StreamArbitrum:
		return s.table, nil
	case chain.StreamFDG:
		if s.gamesTable == "" {
			return "", fmt.Errorf("network table %s has no dispute game table", s.table)
		}
		return s.gamesTable, nil
	default:
		return "", fmt.Errorf("unknown stream %q", stream)
	}
}

// ResumePoint returns the highest L1 block with a row of the stream, or
// false when the stream has no rows yet.
func (s *Store) ResumePoint(ctx context.Context, stream chain.StreamKind) (uint64, bool, error) {
	table, err := s.tableFor(stream)
	if err != nil {
		return 0, false, err
	}

	var highest sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(l1_block_number) FROM %s", table) //nolint:gosec
	if err := s.db.QueryRowContext(ctx, query).Scan(&highest); err != nil {
		return 0, false, fmt.Errorf("failed to get resume point of %s: %w", table, err)
	}

	if !highest.Valid {
		return 0, false, nil
	}
	return uint64(highest.Int64), true, nil
}

// StartBlock returns the first L1 block to scan for the stream: one past its
// resume point, or the stream's start block when it has no rows.
func (s *Store) StartBlock(ctx context.Context, stream chain.Stream) (uint64, error) {
	resume, ok, err := s.ResumePoint(ctx, stream.Kind)
	if err != nil {
		return 0, err
	}
	if !ok {
		return stream.Start, nil
	}
	return resume + 1, nil
}

// HighestGameIndex returns max(game_index), or false when there are no games.
func (s *Store) HighestGameIndex(ctx context.Context) (uint64, bool, error) {
	if s.gamesTable == "" {
		return 0, false, fmt.Errorf("network table %s has no dispute game table", s.table)
	}

	var highest sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(game_index) FROM %s", s.gamesTable) //nolint:gosec
	if err := s.db.QueryRowContext(ctx, query).Scan(&highest); err != nil {
		return 0, false, fmt.Errorf("failed to get highest game index: %w", err)
	}

	if !highest.Valid {
		return 0, false, nil
	}
	return uint64(highest.Int64), true, nil
}

// NextGameIndex returns the index the next dispute game receives.
func (s *Store) NextGameIndex(ctx context.Context) (uint64, error) {
	highest, ok, err := s.HighestGameIndex(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return highest + 1, nil
}
