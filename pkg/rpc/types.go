package rpc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is an L1 block with its transaction hashes, as returned by
// eth_getBlockByNumber without full transactions.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Transactions []common.Hash  `json:"transactions"`
}

// L2Block is the part of an L2 block the indexer reads.
type L2Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   string `json:"hash"`
	Number uint64 `json:"number"`
}

// L2BlockRef is the rollup node's reference to an L2 block.
type L2BlockRef struct {
	Hash           string  `json:"hash"`
	Number         uint64  `json:"number"`
	ParentHash     string  `json:"parentHash"`
	Timestamp      uint64  `json:"timestamp"`
	L1Origin       BlockID `json:"l1origin"`
	SequenceNumber uint64  `json:"sequenceNumber"`
}

// OutputAtBlock is the response of optimism_outputAtBlock.
type OutputAtBlock struct {
	Version               string     `json:"version"`
	OutputRoot            string     `json:"outputRoot"`
	BlockRef              L2BlockRef `json:"blockRef"`
	WithdrawalStorageRoot string     `json:"withdrawalStorageRoot"`
	StateRoot             string     `json:"stateRoot"`
}

// OutputRoots holds the decoded L2 commitments of an output.
type OutputRoots struct {
	StateRoot             common.Hash
	WithdrawalStorageRoot common.Hash
	BlockHash             common.Hash
}

// Roots decodes the state root, withdrawal storage root and block hash.
// Malformed values are reported instead of defaulting to zero.
func (o *OutputAtBlock) Roots() (OutputRoots, error) {
	stateRoot, err := ParseHash(o.StateRoot)
	if err != nil {
		return OutputRoots{}, fmt.Errorf("invalid stateRoot: %w", err)
	}

	withdrawalRoot, err := ParseHash(o.WithdrawalStorageRoot)
	if err != nil {
		return OutputRoots{}, fmt.Errorf("invalid withdrawalStorageRoot: %w", err)
	}

	blockHash, err := ParseHash(o.BlockRef.Hash)
	if err != nil {
		return OutputRoots{}, fmt.Errorf("invalid blockRef.hash: %w", err)
	}

	return OutputRoots{
		StateRoot:             stateRoot,
		WithdrawalStorageRoot: withdrawalRoot,
		BlockHash:             blockHash,
	}, nil
}

// ParseHash strictly decodes a 0x-prefixed 32 byte hex string.
func ParseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%q: expected %d bytes, got %d", s, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
