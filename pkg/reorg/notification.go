package reorg

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is an L1 block with the logs of interest it contains.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Time       uint64
	// Transactions are the block's transaction hashes in block order.
	Transactions []common.Hash
	Logs         []types.Log
}

// Segment is a contiguous run of blocks in ascending order.
type Segment struct {
	Blocks []Block
}

// Tip returns the last block of the segment.
func (s *Segment) Tip() (Block, bool) {
	if s == nil || len(s.Blocks) == 0 {
		return Block{}, false
	}
	return s.Blocks[len(s.Blocks)-1], true
}

// Notification describes a chain change. When both segments are set the
// reverted one must be applied first.
type Notification struct {
	Committed *Segment
	Reverted  *Segment
}

// FinishedHeight acknowledges that every block up to and including the given
// one has been processed.
type FinishedHeight struct {
	Number uint64
	Hash   common.Hash
}

// Handler consumes notifications. ok is false when there is nothing to
// acknowledge, e.g. for a revert without a new canonical segment.
type Handler interface {
	Handle(ctx context.Context, n Notification) (finished FinishedHeight, ok bool, err error)
}
