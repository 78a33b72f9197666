package reorg

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/store"
	"github.com/goran-ethernal/RollupIndexor/pkg/reorg"
)

var _ reorg.Handler = (*Consumer)(nil)

// Storage is the store port of the consumer.
type Storage interface {
	ResumePoint(ctx context.Context, stream chain.StreamKind) (uint64, bool, error)
	NextGameIndex(ctx context.Context) (uint64, error)
	WriteBatch(ctx context.Context, batch *store.Batch) error
	DeleteBatch(ctx context.Context, batch *store.Batch) (int64, error)
}

// GameEnricher turns DisputeGameCreated logs into records.
type GameEnricher interface {
	Enrich(ctx context.Context, log types.Log, gameIndex uint64) (*events.DisputeGameRecord, error)
}

// RootResolver turns SendRootUpdated logs into records.
type RootResolver interface {
	Resolve(ctx context.Context, log types.Log) (*events.ArbitrumRootRecord, error)
}

// Consumer applies notifications to the store: reverted segments delete the
// rows their logs produced, committed segments insert new rows.
type Consumer struct {
	family     chain.Family
	transition *uint64
	storage    Storage
	games      GameEnricher
	roots      RootResolver
	log        *logger.Logger
}

// NewConsumer creates a consumer for the network's event family.
func NewConsumer(
	family chain.Family,
	transition *uint64,
	storage Storage,
	games GameEnricher,
	roots RootResolver,
	log *logger.Logger,
) (*Consumer, error) {
	if family.HasDisputeGames() && games == nil {
		return nil, fmt.Errorf("dispute game enricher is required for an FDG eligible network")
	}
	if family.IsArbitrum() && roots == nil {
		return nil, fmt.Errorf("send root resolver is required for an Arbitrum network")
	}

	return &Consumer{
		family:     family,
		transition: transition,
		storage:    storage,
		games:      games,
		roots:      roots,
		log:        log,
	}, nil
}

// Handle applies the reverted segment, then the committed one. It returns the
// committed tip as finished height.
func (c *Consumer) Handle(ctx context.Context, n reorg.Notification) (reorg.FinishedHeight, bool, error) {
	if n.Reverted != nil {
		if err := c.revert(ctx, n.Reverted); err != nil {
			return reorg.FinishedHeight{}, false, err
		}
		NotificationHandledInc("revert")
	}

	tip, ok := n.Committed.Tip()
	if !ok {
		return reorg.FinishedHeight{}, false, nil
	}

	if err := c.commit(ctx, n.Committed); err != nil {
		return reorg.FinishedHeight{}, false, err
	}
	NotificationHandledInc("commit")

	return reorg.FinishedHeight{Number: tip.Number, Hash: tip.Hash}, true, nil
}

// entry is a log of the network's family with its stream.
type entry struct {
	stream chain.StreamKind
	log    types.Log
}

// entries returns the logs of the segment belonging to the family, in chain
// order, with their transaction position taken from the block.
func (c *Consumer) entries(segment *reorg.Segment) ([]entry, error) {
	var out []entry
	for _, b := range segment.Blocks {
		logs := slices.Clone(b.Logs)
		slices.SortStableFunc(logs, func(x, y types.Log) int {
			return cmp.Compare(x.Index, y.Index)
		})

		for _, log := range logs {
			if len(log.Topics) == 0 {
				continue
			}
			stream, ok := c.family.StreamOf(log.Address, log.Topics[0])
			if !ok {
				continue
			}
			if stream.Kind == chain.StreamLegacy && c.transition != nil && b.Number >= *c.transition {
				continue
			}

			position := slices.Index(b.Transactions, log.TxHash)
			if position < 0 {
				return nil, fmt.Errorf("%w: %s in block %d", ErrTransactionNotInBlock, log.TxHash.Hex(), b.Number)
			}
			log.TxIndex = uint(position)
			log.BlockNumber = b.Number
			log.BlockHash = b.Hash

			out = append(out, entry{stream: stream.Kind, log: log})
		}
	}
	return out, nil
}

// revert deletes the rows of the segment's logs by natural key. Reverted
// logs are decoded without RPC calls.
func (c *Consumer) revert(ctx context.Context, segment *reorg.Segment) error {
	entries, err := c.entries(segment)
	if err != nil {
		return err
	}

	batch := &store.Batch{}
	for _, e := range entries {
		switch e.stream {
		case chain.StreamLegacy:
			record, err := events.ParseOutputProposed(e.log)
			if err != nil {
				return err
			}
			batch.Outputs = append(batch.Outputs, record)

		case chain.StreamArbitrum:
			record, err := events.ParseSendRootUpdated(e.log)
			if err != nil {
				return err
			}
			batch.Roots = append(batch.Roots, record)

		case chain.StreamFDG:
			created, err := events.ParseDisputeGameCreated(e.log)
			if err != nil {
				return err
			}
			batch.Games = append(batch.Games, &events.DisputeGameRecord{
				GameAddress: created.Game,
				RootClaim:   created.RootClaim,
				L1BlockHash: e.log.BlockHash,
			})
		}
	}

	deleted, err := c.storage.DeleteBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to revert segment: %w", err)
	}

	first, _ := firstBlock(segment)
	tip, _ := segment.Tip()
	c.log.Infow("segment reverted",
		"from_block", first.Number,
		"to_block", tip.Number,
		"records", batch.Len(),
		"deleted", deleted,
	)
	return nil
}

// commit inserts the rows of the segment's logs in one batch. Logs at or below
// a stream's resume point were already stored by an earlier delivery of the
// same segment and are skipped.
func (c *Consumer) commit(ctx context.Context, segment *reorg.Segment) error {
	entries, err := c.entries(segment)
	if err != nil {
		return err
	}

	resume := make(map[chain.StreamKind]*uint64, len(c.family.Streams()))
	for _, s := range c.family.Streams() {
		point, ok, err := c.storage.ResumePoint(ctx, s.Kind)
		if err != nil {
			return err
		}
		if ok {
			resume[s.Kind] = &point
		}
	}

	var gameIndex uint64
	if c.family.HasDisputeGames() {
		if gameIndex, err = c.storage.NextGameIndex(ctx); err != nil {
			return err
		}
	}

	batch := &store.Batch{}
	for _, e := range entries {
		if point := resume[e.stream]; point != nil && e.log.BlockNumber <= *point {
			continue
		}

		switch e.stream {
		case chain.StreamLegacy:
			record, err := events.ParseOutputProposed(e.log)
			if err != nil {
				return err
			}
			batch.Outputs = append(batch.Outputs, record)

		case chain.StreamArbitrum:
			record, err := c.roots.Resolve(ctx, e.log)
			if err != nil {
				return err
			}
			batch.Roots = append(batch.Roots, record)

		case chain.StreamFDG:
			record, err := c.games.Enrich(ctx, e.log, gameIndex)
			if err != nil {
				return fmt.Errorf("failed to enrich game %d: %w", gameIndex, err)
			}
			batch.Games = append(batch.Games, record)
			gameIndex++
		}
	}

	if err := c.storage.WriteBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit segment: %w", err)
	}

	first, _ := firstBlock(segment)
	tip, _ := segment.Tip()
	c.log.Debugw("segment committed",
		"from_block", first.Number,
		"to_block", tip.Number,
		"records", batch.Len(),
		"tip_hash", tip.Hash.Hex(),
	)
	return nil
}
