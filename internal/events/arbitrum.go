package events

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
)

// ArbitrumResolver completes SendRootUpdated records with the L2 block number.
type ArbitrumResolver struct {
	l2 pkgrpc.RollupClient
}

// NewArbitrumResolver creates a resolver reading blocks from the Arbitrum chain RPC.
func NewArbitrumResolver(l2 pkgrpc.RollupClient) *ArbitrumResolver {
	return &ArbitrumResolver{l2: l2}
}

// Resolve decodes a SendRootUpdated log and looks up the L2 block it commits to.
func (r *ArbitrumResolver) Resolve(ctx context.Context, log types.Log) (*ArbitrumRootRecord, error) {
	record, err := ParseSendRootUpdated(log)
	if err != nil {
		return nil, err
	}

	block, err := r.l2.BlockByHash(ctx, record.L2BlockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve send root %s: %w", record.OutputRoot.Hex(), err)
	}
	if block.Hash != (common.Hash{}) && block.Hash != record.L2BlockHash {
		return nil, fmt.Errorf("L2 node returned block %s for hash %s", block.Hash.Hex(), record.L2BlockHash.Hex())
	}

	record.L2BlockNumber = block.Number
	ArbitrumRootResolvedInc()

	return record, nil
}
