package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
)

const maxBatchSize = 100

// Compile-time check to ensure Client implements pkgrpc.EthClient interface.
var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps the L1 RPC client with retries and metrics.
// It implements the pkgrpc.EthClient interface.
type Client struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	retry *config.RetryConfig
	log   *logger.Logger
}

// NewClient creates a new RPC client connected to the given endpoint.
func NewClient(ctx context.Context, endpoint string, retry *config.RetryConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial L1 endpoint: %w", err)
	}

	return NewClientFromRPC(rpcClient, retry, log), nil
}

// NewClientFromRPC wraps an already connected rpc.Client.
func NewClientFromRPC(rpcClient *rpc.Client, retry *config.RetryConfig, log *logger.Logger) *Client {
	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retry,
		log:   log,
	}
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber returns the current L1 head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := call(ctx, c.retry, c.log, "eth_blockNumber", func() (err error) {
		head, err = c.eth.BlockNumber(ctx)
		return err
	})
	return head, err
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := call(ctx, c.retry, c.log, "eth_getLogs", func() (err error) {
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// GetHeaderByHash retrieves the header of the block with the given hash.
func (c *Client) GetHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	var header *types.Header
	err := call(ctx, c.retry, c.log, "eth_getBlockByHash", func() (err error) {
		header, err = c.eth.HeaderByHash(ctx, hash)
		return err
	})
	return header, err
}

// GetHeadBlockNumber returns the number of the block with the given tag.
func (c *Client) GetHeadBlockNumber(ctx context.Context, tag string) (uint64, error) {
	var block *pkgrpc.Block
	err := call(ctx, c.retry, c.log, "eth_getBlockByNumber", func() error {
		return c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", tag, false)
	})
	if err != nil {
		return 0, err
	}
	if block == nil {
		return 0, fmt.Errorf("no %s block available", tag)
	}
	return uint64(block.Number), nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := call(ctx, c.retry, c.log, "eth_call", func() (err error) {
		out, err = c.eth.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// BatchGetBlocks retrieves blocks with their transaction hashes, chunked
// into batch calls of at most maxBatchSize elements.
func (c *Client) BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*pkgrpc.Block, error) {
	allResults := make([]*pkgrpc.Block, 0, len(blockNums))

	for i := 0; i < len(blockNums); i += maxBatchSize {
		chunk := blockNums[i:min(i+maxBatchSize, len(blockNums))]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]*pkgrpc.Block, len(chunk))
		for j, blockNum := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{internalcommon.ToHexQuantity(blockNum), false},
				Result: &results[j],
			}
		}

		err := call(ctx, c.retry, c.log, "eth_getBlockByNumber_batch", func() error {
			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return err
			}
			for _, elem := range batch {
				if elem.Error != nil {
					return elem.Error
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for j, block := range results {
			if block == nil {
				return nil, fmt.Errorf("block %d not found", chunk[j])
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// call runs fn through the retry policy and records request metrics.
func call(ctx context.Context, retry *config.RetryConfig, log *logger.Logger, method string, fn func() error) error {
	start := time.Now()
	RPCMethodInc(method)

	err := retryWithBackoff(ctx, retry, method, fn)
	RPCMethodDuration(method, time.Since(start))

	if err != nil && !IsOutputAbsent(err) {
		RPCMethodError(method, errorType(err))
		if log != nil {
			log.Debugw("rpc call failed", "method", method, "error", err)
		}
	}

	return err
}
