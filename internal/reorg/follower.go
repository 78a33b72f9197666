package reorg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	internalcommon "github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/metrics"
	"github.com/goran-ethernal/RollupIndexor/internal/migrations"
	"github.com/goran-ethernal/RollupIndexor/internal/store"
	internaltypes "github.com/goran-ethernal/RollupIndexor/internal/types"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/goran-ethernal/RollupIndexor/pkg/reorg"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
	"github.com/russross/meddler"
)

// L1 is the part of the L1 client the follower reads from.
type L1 interface {
	GetHeadBlockNumber(ctx context.Context, tag string) (uint64, error)
	BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*pkgrpc.Block, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// journalBlock is a block the follower has emitted as canonical.
type journalBlock struct {
	BlockNumber  uint64        `meddler:"block_number"`
	BlockHash    common.Hash   `meddler:"block_hash,hash"`
	ParentHash   common.Hash   `meddler:"parent_hash,hash"`
	BlockTime    uint64        `meddler:"block_time"`
	Transactions []common.Hash `meddler:"transactions,json"`
	Logs         []types.Log   `meddler:"logs,json"`
}

func (j *journalBlock) block() reorg.Block {
	return reorg.Block{
		Number:       j.BlockNumber,
		Hash:         j.BlockHash,
		ParentHash:   j.ParentHash,
		Time:         j.BlockTime,
		Transactions: j.Transactions,
		Logs:         j.Logs,
	}
}

// Follower follows the L1 head and produces notifications for the network's
// contracts. It journals the blocks it emitted as canonical and compares them
// with the chain on every poll; a divergence yields the journaled blocks as a
// reverted segment followed by the new canonical blocks.
//
// The journal only changes in Apply, so a failed poll can simply be retried.
type Follower struct {
	db           *sql.DB
	table        string
	l1           L1
	family       chain.Family
	finality     internaltypes.BlockFinality
	maxBlocks    uint64
	pollInterval time.Duration
	start        uint64
	locker       store.OperationLocker
	log          *logger.Logger
}

// NewFollower creates a follower journaling into {table}_journal. start is the
// first block followed when the journal is empty.
func NewFollower(
	database *sql.DB,
	network *config.NetworkConfig,
	family chain.Family,
	cfg *config.FollowerConfig,
	l1 L1,
	start uint64,
	log *logger.Logger,
) (*Follower, error) {
	finality, err := internaltypes.ParseBlockFinality(cfg.Finality)
	if err != nil {
		return nil, fmt.Errorf("invalid finality configuration: %w", err)
	}
	if cfg.MaxBlocksPerNotification == 0 {
		return nil, errors.New("max_blocks_per_notification must be greater than zero")
	}

	if err := migrations.Run(log, database, migrations.ReorgJournal(network.Table)); err != nil {
		return nil, fmt.Errorf("failed to create journal for %s: %w", network.Table, err)
	}

	f := &Follower{
		db:           database,
		table:        network.Table + "_journal",
		l1:           l1,
		family:       family,
		finality:     finality,
		maxBlocks:    cfg.MaxBlocksPerNotification,
		pollInterval: cfg.PollInterval.Duration,
		start:        start,
		log:          log,
	}

	metrics.ComponentHealthSet(internalcommon.ComponentReorgFollower, true)
	f.log.Infow("reorg follower initialized", "finality", finality, "start_block", start)

	return f, nil
}

// SetOperationLocker makes journal writes hold locker's operation lock.
func (f *Follower) SetOperationLocker(locker store.OperationLocker) {
	f.locker = locker
}

func (f *Follower) lock() func() {
	if f.locker == nil {
		return func() {}
	}
	return f.locker.AcquireOperationLock()
}

// Poll compares the journal with the chain and fetches the next canonical
// blocks. It returns nil when nothing changed.
func (f *Follower) Poll(ctx context.Context) (*reorg.Notification, error) {
	head, err := f.l1.GetHeadBlockNumber(ctx, f.finality.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get %s block: %w", f.finality, err)
	}

	journal, err := f.journal(ctx)
	if err != nil {
		return nil, err
	}

	notification := &reorg.Notification{}
	next := f.start
	var parent *common.Hash

	if len(journal) > 0 {
		diverged, err := f.divergence(ctx, journal, head)
		if err != nil {
			return nil, err
		}

		if diverged < len(journal) {
			reverted := &reorg.Segment{Blocks: make([]reorg.Block, 0, len(journal)-diverged)}
			for _, j := range journal[diverged:] {
				reverted.Blocks = append(reverted.Blocks, j.block())
			}
			notification.Reverted = reverted

			depth := uint64(len(journal) - diverged)
			ReorgDetectedLog(depth)
			f.log.Warnw("reorg detected",
				"first_reorg_block", journal[diverged].BlockNumber,
				"depth", depth,
			)
		}

		if diverged > 0 {
			tip := journal[diverged-1]
			next = tip.BlockNumber + 1
			parent = &tip.BlockHash
		} else {
			next = journal[0].BlockNumber
		}
	}

	if next <= head {
		committed, err := f.fetch(ctx, next, min(next+f.maxBlocks-1, head), parent)
		if err != nil {
			return nil, err
		}
		notification.Committed = committed
	}

	if notification.Committed == nil && notification.Reverted == nil {
		return nil, nil
	}
	return notification, nil
}

// divergence returns the position of the first journal block that is no
// longer canonical, or len(journal) when all of them are.
func (f *Follower) divergence(ctx context.Context, journal []*journalBlock, head uint64) (int, error) {
	numbers := make([]uint64, 0, len(journal))
	for _, j := range journal {
		if j.BlockNumber > head {
			break
		}
		numbers = append(numbers, j.BlockNumber)
	}

	var current []*pkgrpc.Block
	if len(numbers) > 0 {
		var err error
		current, err = f.l1.BatchGetBlocks(ctx, numbers)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch journaled blocks: %w", err)
		}
	}

	for i, j := range journal {
		if i >= len(current) || current[i].Hash != j.BlockHash {
			return i, nil
		}
	}
	return len(journal), nil
}

// fetch builds the canonical segment [from, to] and checks that it extends parent.
func (f *Follower) fetch(ctx context.Context, from, to uint64, parent *common.Hash) (*reorg.Segment, error) {
	numbers := make([]uint64, 0, to-from+1)
	for n := from; n <= to; n++ {
		numbers = append(numbers, n)
	}

	blocks, err := f.l1.BatchGetBlocks(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blocks [%d, %d]: %w", from, to, err)
	}

	logs, err := f.l1.GetLogs(ctx, f.family.Query(from, to))
	if err != nil {
		return nil, fmt.Errorf("failed to get logs [%d, %d]: %w", from, to, err)
	}

	segment := &reorg.Segment{Blocks: make([]reorg.Block, 0, len(blocks))}
	byNumber := make(map[uint64]int, len(blocks))
	for i, b := range blocks {
		expectedParent := parent
		if i > 0 {
			expectedParent = &blocks[i-1].Hash
		}
		if expectedParent != nil && b.ParentHash != *expectedParent {
			return nil, NewReorgError(uint64(b.Number),
				fmt.Sprintf("parent_hash=%s expected=%s", b.ParentHash.Hex(), expectedParent.Hex()))
		}

		byNumber[uint64(b.Number)] = i
		segment.Blocks = append(segment.Blocks, reorg.Block{
			Number:     uint64(b.Number),
			Hash:       b.Hash,
			ParentHash: b.ParentHash,
			Time:       uint64(b.Timestamp),
		})
	}

	for _, log := range logs {
		i, ok := byNumber[log.BlockNumber]
		if !ok {
			return nil, fmt.Errorf("log in block %d outside of range [%d, %d]", log.BlockNumber, from, to)
		}
		if log.BlockHash != segment.Blocks[i].Hash {
			return nil, NewReorgError(log.BlockNumber,
				fmt.Sprintf("log_hash=%s block_hash=%s", log.BlockHash.Hex(), segment.Blocks[i].Hash.Hex()))
		}

		b := &segment.Blocks[i]
		if b.Transactions == nil {
			b.Transactions = blocks[i].Transactions
		}
		b.Logs = append(b.Logs, log)
	}

	return segment, nil
}

// Apply records a handled notification in the journal: reverted blocks are
// removed and committed blocks appended.
func (f *Follower) Apply(ctx context.Context, n *reorg.Notification) error {
	defer f.lock()()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			f.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if first, ok := firstBlock(n.Reverted); ok {
		query := fmt.Sprintf("DELETE FROM %s WHERE block_number >= ?", f.table) //nolint:gosec
		if _, err := tx.ExecContext(ctx, query, first.Number); err != nil {
			return fmt.Errorf("failed to remove reverted blocks: %w", err)
		}
	}

	if n.Committed != nil {
		for _, b := range n.Committed.Blocks {
			j := &journalBlock{
				BlockNumber:  b.Number,
				BlockHash:    b.Hash,
				ParentHash:   b.ParentHash,
				BlockTime:    b.Time,
				Transactions: b.Transactions,
				Logs:         b.Logs,
			}
			if j.Transactions == nil {
				j.Transactions = []common.Hash{}
			}
			if j.Logs == nil {
				j.Logs = []types.Log{}
			}
			if err := meddler.Insert(tx, f.table, j); err != nil {
				return fmt.Errorf("failed to journal block %d: %w", b.Number, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ack records the consumer's finished height and prunes journal blocks below
// both it and the finalized block, which can no longer be reverted.
func (f *Follower) Ack(ctx context.Context, finished reorg.FinishedHeight) error {
	keepFrom := finished.Number
	if f.finality.CanReorg() {
		finalized, err := f.l1.GetHeadBlockNumber(ctx, internaltypes.FinalityFinalized.String())
		if err != nil {
			return fmt.Errorf("failed to get finalized block: %w", err)
		}
		keepFrom = min(keepFrom, finalized)
	}

	unlock := f.lock()
	defer unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE block_number < ?", f.table) //nolint:gosec
	result, err := f.db.ExecContext(ctx, query, keepFrom)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}

	if pruned, _ := result.RowsAffected(); pruned > 0 {
		f.log.Debugw("pruned journal", "keep_from_block", keepFrom, "pruned", pruned)
	}
	return nil
}

// Run polls for notifications and hands them to handler until ctx is
// cancelled. Reorgs racing a fetch are retried on the next poll.
func (f *Follower) Run(ctx context.Context, handler reorg.Handler) error {
	defer metrics.ComponentHealthSet(internalcommon.ComponentReorgFollower, false)

	for {
		caughtUp, err := f.step(ctx, handler)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var reorgErr *ReorgDetectedError
			if !errors.As(err, &reorgErr) {
				return err
			}
			f.log.Warnw("chain changed during fetch, retrying",
				"block", reorgErr.FirstReorgBlock,
				"details", reorgErr.Details,
			)
			caughtUp = true
		}

		if !caughtUp {
			continue
		}

		select {
		case <-ctx.Done():
			f.log.Info("reorg follower stopped")
			return nil
		case <-time.After(f.pollInterval):
		}
	}
}

// step handles one notification and reports whether the follower reached the head.
func (f *Follower) step(ctx context.Context, handler reorg.Handler) (bool, error) {
	n, err := f.Poll(ctx)
	if err != nil {
		return false, err
	}
	if n == nil {
		return true, nil
	}

	finished, ok, err := handler.Handle(ctx, *n)
	if err != nil {
		return false, fmt.Errorf("failed to handle notification: %w", err)
	}

	if err := f.Apply(ctx, n); err != nil {
		return false, err
	}

	if ok {
		if err := f.Ack(ctx, finished); err != nil {
			return false, err
		}
	}

	count, err := f.journalSize(ctx)
	if err != nil {
		return false, err
	}
	JournalBlocksSet(count)

	return n.Reverted == nil && uint64(len(segmentBlocks(n.Committed))) < f.maxBlocks, nil
}

func (f *Follower) journal(ctx context.Context) ([]*journalBlock, error) {
	rows, err := f.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY block_number ASC", f.table)) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	var blocks []*journalBlock
	if err := meddler.ScanAll(rows, &blocks); err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}
	return blocks, nil
}

func (f *Follower) journalSize(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", f.table) //nolint:gosec
	if err := f.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return count, nil
}

func firstBlock(s *reorg.Segment) (reorg.Block, bool) {
	if s == nil || len(s.Blocks) == 0 {
		return reorg.Block{}, false
	}
	return s.Blocks[0], true
}

func segmentBlocks(s *reorg.Segment) []reorg.Block {
	if s == nil {
		return nil
	}
	return s.Blocks
}
