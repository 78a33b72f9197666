package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/russross/meddler"
)

// Batch is a set of records written or deleted in one transaction.
type Batch struct {
	Outputs []*events.OutputRecord
	Roots   []*events.ArbitrumRootRecord
	Games   []*events.DisputeGameRecord
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Outputs) + len(b.Roots) + len(b.Games)
}

// WriteBatch inserts all records of the batch in order, atomically.
func (s *Store) WriteBatch(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if len(batch.Games) > 0 && s.gamesTable == "" {
		return fmt.Errorf("network table %s has no dispute game table", s.table)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range batch.Outputs {
			if err := meddler.Insert(tx, s.table, r); err != nil {
				return fmt.Errorf("failed to insert output %d: %w", r.OutputIndex, err)
			}
		}
		for _, r := range batch.Roots {
			if err := meddler.Insert(tx, s.table, r); err != nil {
				return fmt.Errorf("failed to insert send root %s: %w", r.OutputRoot.Hex(), err)
			}
		}
		for _, r := range batch.Games {
			if err := meddler.Insert(tx, s.gamesTable, r); err != nil {
				return fmt.Errorf("failed to insert dispute game %d: %w", r.GameIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	RowsInsertedAdd(s.table, len(batch.Outputs)+len(batch.Roots))
	RowsInsertedAdd(s.gamesTable, len(batch.Games))
	return nil
}

// DeleteBatch removes the rows matching the natural keys of the batch records,
// atomically, and returns the number of deleted rows.
func (s *Store) DeleteBatch(ctx context.Context, batch *Batch) (int64, error) {
	if batch.Len() == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		outputQuery := fmt.Sprintf(`DELETE FROM %s
			WHERE l2_output_root = ? AND l2_output_index = ? AND l2_block_number = ? AND l1_timestamp = ?`,
			s.table) //nolint:gosec
		for _, r := range batch.Outputs {
			n, err := exec(ctx, tx, outputQuery, r.OutputRoot.Hex(), r.OutputIndex, r.L2BlockNumber, r.L1Timestamp)
			if err != nil {
				return fmt.Errorf("failed to delete output %d: %w", r.OutputIndex, err)
			}
			deleted += n
		}

		rootQuery := fmt.Sprintf(`DELETE FROM %s
			WHERE l2_output_root = ? AND l2_block_hash = ? AND l1_block_hash = ?`, s.table) //nolint:gosec
		for _, r := range batch.Roots {
			n, err := exec(ctx, tx, rootQuery, r.OutputRoot.Hex(), r.L2BlockHash.Hex(), r.L1BlockHash.Hex())
			if err != nil {
				return fmt.Errorf("failed to delete send root %s: %w", r.OutputRoot.Hex(), err)
			}
			deleted += n
		}

		if len(batch.Games) > 0 {
			if s.gamesTable == "" {
				return fmt.Errorf("network table %s has no dispute game table", s.table)
			}
			gameQuery := fmt.Sprintf(`DELETE FROM %s
				WHERE game_address = ? AND root_claim = ? AND l1_block_hash = ?`, s.gamesTable) //nolint:gosec
			for _, r := range batch.Games {
				n, err := exec(ctx, tx, gameQuery,
					db.AddressString(r.GameAddress), r.RootClaim.Hex(), r.L1BlockHash.Hex())
				if err != nil {
					return fmt.Errorf("failed to delete dispute game %s: %w", r.GameAddress.Hex(), err)
				}
				deleted += n
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	RowsDeletedAdd(s.table, deleted)
	return deleted, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.locker != nil {
		unlock := s.locker.AcquireOperationLock()
		defer unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
