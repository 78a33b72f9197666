package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient defines the L1 operations the indexer needs.
// This abstraction allows for easier testing and alternative implementations.
type EthClient interface {
	ethereum.ContractCaller

	// Close closes the RPC client connection.
	Close()

	// BlockNumber returns the current L1 head.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetHeaderByHash retrieves the header of the block with the given hash.
	GetHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)

	// GetHeadBlockNumber returns the number of the "latest", "safe" or "finalized" block.
	GetHeadBlockNumber(ctx context.Context, tag string) (uint64, error)

	// BatchGetBlocks retrieves blocks with their transaction hashes in a single batch call.
	BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*Block, error)
}

// RollupClient defines the L2 operations the indexer needs.
type RollupClient interface {
	// Close closes the RPC client connection.
	Close()

	// OutputAtBlock returns the output proposed for the given L2 block,
	// or nil when the node has no data for it.
	OutputAtBlock(ctx context.Context, l2Block uint64) (*OutputAtBlock, error)

	// BlockByHash returns the L2 block with the given hash.
	BlockByHash(ctx context.Context, hash common.Hash) (*L2Block, error)
}

// DisputeGameCaller reads the state of deployed dispute game contracts.
type DisputeGameCaller interface {
	Status(ctx context.Context, game common.Address) (uint8, error)
	CreatedAt(ctx context.Context, game common.Address) (uint64, error)
	GameCreator(ctx context.Context, game common.Address) (common.Address, error)
	L2BlockNumber(ctx context.Context, game common.Address) (*big.Int, error)
}
