package events

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
)

const headerCacheSize = 1024

// HeaderSource fetches L1 headers by hash.
type HeaderSource interface {
	GetHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
}

// DisputeGameEnricher turns DisputeGameCreated logs into full records by
// reading the game contract and the L2 rollup node.
type DisputeGameEnricher struct {
	games       pkgrpc.DisputeGameCaller
	rollup      pkgrpc.RollupClient
	headers     HeaderSource
	environment config.Environment
	trusted     common.Address
	timestamps  *lru.Cache[common.Hash, uint64]
	log         *logger.Logger
}

// NewDisputeGameEnricher creates an enricher for an FDG eligible network.
func NewDisputeGameEnricher(
	network *config.NetworkConfig,
	games pkgrpc.DisputeGameCaller,
	rollup pkgrpc.RollupClient,
	headers HeaderSource,
	log *logger.Logger,
) (*DisputeGameEnricher, error) {
	trusted, ok := network.TrustedProposer()
	if !ok {
		return nil, fmt.Errorf("network %s: trusted_proposer_address is required to index dispute games", network.ID())
	}

	timestamps, err := lru.New[common.Hash, uint64](headerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create header cache: %w", err)
	}

	return &DisputeGameEnricher{
		games:       games,
		rollup:      rollup,
		headers:     headers,
		environment: network.Environment,
		trusted:     trusted,
		timestamps:  timestamps,
		log:         log,
	}, nil
}

// Enrich builds the record for a DisputeGameCreated log and stamps it with
// gameIndex. Any RPC failure is returned; an L2 node without data for the
// claimed block leaves the L2 fields nil.
func (e *DisputeGameEnricher) Enrich(ctx context.Context, log types.Log, gameIndex uint64) (*DisputeGameRecord, error) {
	created, err := ParseDisputeGameCreated(log)
	if err != nil {
		return nil, err
	}

	status, err := e.games.Status(ctx, created.Game)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of game %s: %w", created.Game.Hex(), err)
	}

	createdAt, err := e.games.CreatedAt(ctx, created.Game)
	if err != nil {
		return nil, fmt.Errorf("failed to get creation time of game %s: %w", created.Game.Hex(), err)
	}

	// gameCreator() is missing from some testnet deployments
	var creator common.Address
	if e.environment == config.EnvironmentMainnet {
		if creator, err = e.games.GameCreator(ctx, created.Game); err != nil {
			return nil, fmt.Errorf("failed to get creator of game %s: %w", created.Game.Hex(), err)
		}
	}

	l2Block, err := e.games.L2BlockNumber(ctx, created.Game)
	if err != nil {
		return nil, fmt.Errorf("failed to get L2 block number of game %s: %w", created.Game.Hex(), err)
	}
	if l2Block == nil {
		return nil, fmt.Errorf("game %s returned no L2 block number", created.Game.Hex())
	}

	l1Timestamp, err := e.blockTime(ctx, log.BlockHash)
	if err != nil {
		return nil, err
	}

	record := &DisputeGameRecord{
		GameIndex:          gameIndex,
		GameAddress:        created.Game,
		GameType:           created.GameType,
		Timestamp:          createdAt,
		RootClaim:          created.RootClaim,
		GameState:          status,
		Proposer:           creator,
		L2BlockNumber:      l2Block,
		L1Timestamp:        l1Timestamp,
		L1TransactionHash:  log.TxHash,
		L1BlockNumber:      log.BlockNumber,
		L1TransactionIndex: uint64(log.TxIndex),
		L1BlockHash:        log.BlockHash,
	}

	trusted := creator == e.trusted
	if !IsAccepted(status, trusted) {
		e.log.Debugw("dispute game not accepted",
			"game", created.Game.Hex(), "status", status, "creator", creator.Hex(), "game_index", gameIndex)
	}
	DisputeGameAcceptedInc(IsAccepted(status, trusted))

	if l2Block.Sign() < 0 || !l2Block.IsUint64() {
		e.log.Warnw("claimed L2 block out of range, skipping output lookup",
			"game", created.Game.Hex(), "l2_block", l2Block.String())
		return record, nil
	}

	claimed := l2Block.Uint64()
	// l2_block_number_safe is a signed SQLite INTEGER
	if claimed <= math.MaxInt64 {
		record.L2BlockNumberSafe = &claimed
	}

	output, err := e.rollup.OutputAtBlock(ctx, claimed)
	if err != nil {
		return nil, fmt.Errorf("failed to get output for game %s: %w", created.Game.Hex(), err)
	}
	if output == nil {
		e.log.Infow("no output for claimed L2 block", "game", created.Game.Hex(), "l2_block", claimed)
		return record, nil
	}

	roots, err := output.Roots()
	if err != nil {
		return nil, fmt.Errorf("malformed output for L2 block %d: %w", claimed, err)
	}
	record.L2StateRoot = &roots.StateRoot
	record.L2WithdrawalStorageRoot = &roots.WithdrawalStorageRoot
	record.L2BlockHash = &roots.BlockHash

	return record, nil
}

func (e *DisputeGameEnricher) blockTime(ctx context.Context, hash common.Hash) (uint64, error) {
	if ts, ok := e.timestamps.Get(hash); ok {
		return ts, nil
	}

	header, err := e.headers.GetHeaderByHash(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to get L1 header %s: %w", hash.Hex(), err)
	}

	e.timestamps.Add(hash, header.Time)
	return header.Time, nil
}
