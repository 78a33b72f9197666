package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
)

// Compile-time check to ensure RollupClient implements pkgrpc.RollupClient interface.
var _ pkgrpc.RollupClient = (*RollupClient)(nil)

// RollupClient talks to the L2 endpoint: an OP Stack rollup node or an Arbitrum chain RPC.
type RollupClient struct {
	rpc   *rpc.Client
	retry *config.RetryConfig
	log   *logger.Logger
}

// NewRollupClient creates a new L2 client connected to the given endpoint.
func NewRollupClient(ctx context.Context, endpoint string,
	retry *config.RetryConfig, log *logger.Logger) (*RollupClient, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial L2 endpoint: %w", err)
	}

	return NewRollupClientFromRPC(rpcClient, retry, log), nil
}

// NewRollupClientFromRPC wraps an already connected rpc.Client.
func NewRollupClientFromRPC(rpcClient *rpc.Client, retry *config.RetryConfig, log *logger.Logger) *RollupClient {
	return &RollupClient{rpc: rpcClient, retry: retry, log: log}
}

// Close closes the RPC client connection.
func (c *RollupClient) Close() {
	c.rpc.Close()
}

// OutputAtBlock calls optimism_outputAtBlock. A nil output with a nil error
// means the node has no data for the block.
func (c *RollupClient) OutputAtBlock(ctx context.Context, l2Block uint64) (*pkgrpc.OutputAtBlock, error) {
	const method = "optimism_outputAtBlock"

	var output *pkgrpc.OutputAtBlock
	err := call(ctx, c.retry, c.log, method, func() error {
		return c.rpc.CallContext(ctx, &output, method, internalcommon.ToHexQuantity(l2Block))
	})
	if err != nil {
		if IsOutputAbsent(err) {
			OutputsAbsent.Inc()
			if c.log != nil {
				c.log.Debugw("no output available", "l2_block", l2Block, "reason", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get output at L2 block %d: %w", l2Block, err)
	}

	return output, nil
}

type l2BlockResponse struct {
	Number    string      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp string      `json:"timestamp"`
}

// BlockByHash fetches an L2 block header by hash. A missing block is an error.
func (c *RollupClient) BlockByHash(ctx context.Context, hash common.Hash) (*pkgrpc.L2Block, error) {
	const method = "eth_getBlockByHash"

	var raw json.RawMessage
	err := call(ctx, c.retry, c.log, method, func() error {
		return c.rpc.CallContext(ctx, &raw, method, hash, false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get L2 block %s: %w", hash.Hex(), err)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("L2 block %s not found", hash.Hex())
	}

	var resp l2BlockResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode L2 block %s: %w", hash.Hex(), err)
	}

	number, err := internalcommon.ParseUint64orHex(&resp.Number)
	if err != nil {
		return nil, fmt.Errorf("invalid number in L2 block %s: %w", hash.Hex(), err)
	}

	var timestamp uint64
	if resp.Timestamp != "" {
		if timestamp, err = internalcommon.ParseUint64orHex(&resp.Timestamp); err != nil {
			return nil, fmt.Errorf("invalid timestamp in L2 block %s: %w", hash.Hex(), err)
		}
	}

	return &pkgrpc.L2Block{Number: number, Hash: resp.Hash, Timestamp: timestamp}, nil
}
