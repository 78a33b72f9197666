package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/metrics"
	"github.com/goran-ethernal/RollupIndexor/internal/store"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
)

// L1 is the part of the L1 client the engine scans with.
type L1 interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Storage is the checkpoint store port of the engine.
type Storage interface {
	StartBlock(ctx context.Context, stream chain.Stream) (uint64, error)
	NextGameIndex(ctx context.Context) (uint64, error)
	WriteBatch(ctx context.Context, batch *store.Batch) error
}

// GameEnricher turns DisputeGameCreated logs into records.
type GameEnricher interface {
	Enrich(ctx context.Context, log types.Log, gameIndex uint64) (*events.DisputeGameRecord, error)
}

// RootResolver turns SendRootUpdated logs into records.
type RootResolver interface {
	Resolve(ctx context.Context, log types.Log) (*events.ArbitrumRootRecord, error)
}

// RuntimeConfig carries the parameters of one engine run.
type RuntimeConfig struct {
	Network      *config.NetworkConfig
	Family       chain.Family
	BlockDelay   uint64
	BatchSize    uint64
	PollInterval time.Duration
}

// NewRuntimeConfig derives the runtime parameters of a network.
func NewRuntimeConfig(network *config.NetworkConfig) (RuntimeConfig, error) {
	family, err := chain.FromNetwork(network)
	if err != nil {
		return RuntimeConfig{}, err
	}

	return RuntimeConfig{
		Network:      network,
		Family:       family,
		BlockDelay:   network.BlockDelay,
		BatchSize:    network.BatchSize,
		PollInterval: network.PollInterval.Duration,
	}, nil
}

// Engine scans the L1 chain for the streams of one network and writes their
// records to the store. Each stream keeps its own cursor; the cursor and the
// dispute game counter only move after a window is fully stored.
type Engine struct {
	cfg     RuntimeConfig
	l1      L1
	storage Storage
	games   GameEnricher
	roots   RootResolver
	log     *logger.Logger

	cursors       map[chain.StreamKind]uint64
	nextGameIndex uint64
}

// New creates an engine. games is required when the network indexes dispute
// games and roots when it is Arbitrum.
func New(
	cfg RuntimeConfig,
	l1 L1,
	storage Storage,
	games GameEnricher,
	roots RootResolver,
	log *logger.Logger,
) (*Engine, error) {
	if l1 == nil {
		return nil, errors.New("L1 client is required")
	}
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.BatchSize == 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	if cfg.Family.HasDisputeGames() && games == nil {
		return nil, errors.New("dispute game enricher is required for an FDG eligible network")
	}
	if cfg.Family.IsArbitrum() && roots == nil {
		return nil, errors.New("send root resolver is required for an Arbitrum network")
	}

	return &Engine{
		cfg:     cfg,
		l1:      l1,
		storage: storage,
		games:   games,
		roots:   roots,
		log:     log,
		cursors: make(map[chain.StreamKind]uint64, len(cfg.Family.Streams())),
	}, nil
}

// Cursor returns the next L1 block the stream scans.
func (e *Engine) Cursor(stream chain.StreamKind) uint64 {
	return e.cursors[stream]
}

// NextGameIndex returns the index the next dispute game receives.
func (e *Engine) NextGameIndex() uint64 {
	return e.nextGameIndex
}

// Run indexes until ctx is cancelled, returning nil, or until a failure,
// returning a *FatalError.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		if ctx.Err() != nil {
			e.log.Info("indexing stopped")
			return nil
		}

		backfilling, err := e.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.log.Info("indexing stopped")
				return nil
			}
			e.log.Errorw("indexing failed", "error", err)
			return err
		}
		if backfilling {
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("indexing stopped")
			return nil
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// init loads the stream cursors and the game counter from the store.
func (e *Engine) init(ctx context.Context) error {
	for _, stream := range e.cfg.Family.Streams() {
		start, err := e.storage.StartBlock(ctx, stream)
		if err != nil {
			return &FatalError{Stream: stream.Kind, Err: fmt.Errorf("failed to load resume point: %w", err)}
		}
		e.cursors[stream.Kind] = start

		e.log.Infow("stream initialized",
			"stream", stream.Kind,
			"address", stream.Address.Hex(),
			"start_block", start,
		)
	}

	if e.cfg.Family.HasDisputeGames() {
		next, err := e.storage.NextGameIndex(ctx)
		if err != nil {
			return &FatalError{Stream: chain.StreamFDG, Err: fmt.Errorf("failed to load game index: %w", err)}
		}
		e.nextGameIndex = next
		metrics.NextGameIndexSet(next)
		e.log.Infow("dispute game counter initialized", "next_game_index", next)
	}

	return nil
}

// Step runs one iteration over every stream against the current safe head.
// It reports whether any stream still has blocks to scan below the safe head.
func (e *Engine) Step(ctx context.Context) (bool, error) {
	head, err := e.l1.BlockNumber(ctx)
	if err != nil {
		return false, &FatalError{Err: fmt.Errorf("failed to get L1 head: %w", err)}
	}

	safeHead := uint64(0)
	if head > e.cfg.BlockDelay {
		safeHead = head - e.cfg.BlockDelay
	}

	backfilling := false
	for _, stream := range e.cfg.Family.Streams() {
		cursor := e.cursors[stream.Kind]
		from, to, ok := stream.Window(cursor, safeHead, e.cfg.BatchSize)
		if !ok {
			continue
		}

		if err := e.processWindow(ctx, stream, from, to); err != nil {
			return false, err
		}
		e.cursors[stream.Kind] = to + 1

		if to < safeHead && !stream.Finished(to+1) {
			backfilling = true
		}
	}

	return backfilling, nil
}

// processWindow fetches, normalizes and stores the logs of [from, to] as one batch.
func (e *Engine) processWindow(ctx context.Context, stream chain.Stream, from, to uint64) error {
	start := time.Now()

	logs, err := e.l1.GetLogs(ctx, stream.Query(from, to))
	if err != nil {
		return &FatalError{
			Stream: stream.Kind,
			Block:  from,
			Err:    fmt.Errorf("failed to get logs [%d, %d]: %w", from, to, err),
		}
	}

	slices.SortStableFunc(logs, func(a, b types.Log) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})

	batch := &store.Batch{}
	gameIndex := e.nextGameIndex
	for _, log := range logs {
		if log.Removed {
			e.log.Debugw("skipping removed log", "stream", stream.Kind, "block", log.BlockNumber, "index", log.Index)
			continue
		}

		switch stream.Kind {
		case chain.StreamLegacy:
			record, err := events.ParseOutputProposed(log)
			if err != nil {
				return &FatalError{Stream: stream.Kind, Block: log.BlockNumber, Err: err}
			}
			batch.Outputs = append(batch.Outputs, record)

		case chain.StreamArbitrum:
			record, err := e.roots.Resolve(ctx, log)
			if err != nil {
				return &FatalError{Stream: stream.Kind, Block: log.BlockNumber, Err: err}
			}
			batch.Roots = append(batch.Roots, record)

		case chain.StreamFDG:
			record, err := e.games.Enrich(ctx, log, gameIndex)
			if err != nil {
				index := gameIndex
				return &FatalError{Stream: stream.Kind, Block: log.BlockNumber, GameIndex: &index, Err: err}
			}
			batch.Games = append(batch.Games, record)
			gameIndex++

		default:
			return &FatalError{Stream: stream.Kind, Block: log.BlockNumber, Err: errors.New("unknown stream")}
		}
	}

	if err := e.storage.WriteBatch(ctx, batch); err != nil {
		fatal := &FatalError{
			Stream: stream.Kind,
			Block:  from,
			Err:    fmt.Errorf("failed to store window [%d, %d]: %w", from, to, err),
		}
		if len(batch.Games) > 0 {
			index := e.nextGameIndex
			fatal.GameIndex = &index
		}
		return fatal
	}

	e.nextGameIndex = gameIndex

	elapsed := time.Since(start)
	blocks := to - from + 1
	streamName := string(stream.Kind)
	metrics.LastIndexedBlockSet(streamName, to)
	metrics.BlocksProcessedInc(streamName, blocks)
	metrics.WindowsProcessedInc(streamName)
	metrics.LogsIndexedInc(streamName, batch.Len())
	metrics.WindowProcessingTimeLog(streamName, elapsed)
	if elapsed > 0 {
		metrics.IndexingRateLog(streamName, float64(blocks)/elapsed.Seconds())
	}
	if len(batch.Games) > 0 {
		metrics.NextGameIndexSet(e.nextGameIndex)
	}

	if batch.Len() > 0 {
		e.log.Infow("window indexed",
			"stream", stream.Kind,
			"from_block", from,
			"to_block", to,
			"records", batch.Len(),
			"next_game_index", e.nextGameIndex,
		)
	} else {
		e.log.Debugw("window scanned", "stream", stream.Kind, "from_block", from, "to_block", to)
	}

	return nil
}
