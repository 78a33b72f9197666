package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/russross/meddler"
)

// acceptedGameFilter mirrors events.IsAccepted in SQL; the proposer is bound as the first argument.
const acceptedGameFilter = `(game_state = 2 OR (proposer_address = ? AND game_state IN (0, 2)))`

// FirstOutputAtOrAfter returns the first OP Stack output with l2_block_number >= l2Block.
func (s *Store) FirstOutputAtOrAfter(ctx context.Context, l2Block uint64) (*events.OutputRecord, error) {
	if s.kind != chain.KindOpStack {
		return nil, fmt.Errorf("table %s does not hold OP Stack outputs", s.table)
	}
	defer QueryDuration("first_output", time.Now())

	query := fmt.Sprintf(`SELECT * FROM %s WHERE l2_block_number >= ?
		ORDER BY l2_block_number ASC, l2_output_index ASC LIMIT 1`, s.table) //nolint:gosec

	var record events.OutputRecord
	if err := queryRow(ctx, s.db, &record, query, l2Block); err != nil {
		return nil, err
	}
	return &record, nil
}

// FirstSendRootAtOrAfter returns the first Arbitrum send root with l2_block_number >= l2Block.
func (s *Store) FirstSendRootAtOrAfter(ctx context.Context, l2Block uint64) (*events.ArbitrumRootRecord, error) {
	if s.kind != chain.KindArbitrum {
		return nil, fmt.Errorf("table %s does not hold Arbitrum send roots", s.table)
	}
	defer QueryDuration("first_send_root", time.Now())

	query := fmt.Sprintf(`SELECT * FROM %s WHERE l2_block_number >= ?
		ORDER BY l2_block_number ASC, l1_block_number ASC LIMIT 1`, s.table) //nolint:gosec

	var record events.ArbitrumRootRecord
	if err := queryRow(ctx, s.db, &record, query, l2Block); err != nil {
		return nil, err
	}
	return &record, nil
}

// FirstDisputeGameAtOrAfter returns the first accepted dispute game claiming
// an L2 block >= l2Block.
func (s *Store) FirstDisputeGameAtOrAfter(ctx context.Context, l2Block uint64,
	trusted common.Address) (*events.DisputeGameRecord, error) {
	if s.gamesTable == "" {
		return nil, fmt.Errorf("network table %s has no dispute game table", s.table)
	}
	defer QueryDuration("first_dispute_game", time.Now())

	query := fmt.Sprintf(`SELECT * FROM %s
		WHERE %s AND l2_block_number_safe IS NOT NULL AND l2_block_number_safe >= ?
		ORDER BY l2_block_number_safe ASC, game_index ASC LIMIT 1`, s.gamesTable, acceptedGameFilter) //nolint:gosec

	var record events.DisputeGameRecord
	if err := queryRow(ctx, s.db, &record, query, db.AddressString(trusted), l2Block); err != nil {
		return nil, err
	}
	return &record, nil
}

// HighestIndexedL2Block returns the highest L2 block covered by the network.
// With dispute games it is the max of legacy outputs proposed at or before the
// transition block and accepted games.
func (s *Store) HighestIndexedL2Block(ctx context.Context, transition *uint64,
	trusted common.Address) (uint64, error) {
	defer QueryDuration("highest_l2_block", time.Now())

	query := fmt.Sprintf("SELECT MAX(l2_block_number) FROM %s", s.table) //nolint:gosec
	args := []any{}
	if transition != nil {
		query += " WHERE l1_block_number <= ?"
		args = append(args, *transition)
	}

	var legacy sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&legacy); err != nil {
		return 0, fmt.Errorf("failed to query highest L2 block of %s: %w", s.table, err)
	}

	var games sql.NullInt64
	if s.gamesTable != "" {
		gamesQuery := fmt.Sprintf("SELECT MAX(l2_block_number_safe) FROM %s WHERE %s",
			s.gamesTable, acceptedGameFilter) //nolint:gosec
		if err := s.db.QueryRowContext(ctx, gamesQuery, db.AddressString(trusted)).Scan(&games); err != nil {
			return 0, fmt.Errorf("failed to query highest L2 block of %s: %w", s.gamesTable, err)
		}
	}

	if !legacy.Valid && !games.Valid {
		return 0, ErrNotFound
	}
	return uint64(max(legacy.Int64, games.Int64)), nil
}

func queryRow(ctx context.Context, database *sql.DB, dst any, query string, args ...any) error {
	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}

	if err := meddler.ScanRow(rows, dst); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to scan row: %w", err)
	}
	return nil
}
