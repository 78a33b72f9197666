package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Dispute game states as reported by status().
const (
	GameStatusInProgress     uint8 = 0
	GameStatusChallengerWins uint8 = 1
	GameStatusDefenderWins   uint8 = 2
)

// OutputRecord is a legacy OP Stack OutputProposed event.
type OutputRecord struct {
	ID                 int64       `meddler:"id,pk"`
	OutputRoot         common.Hash `meddler:"l2_output_root,hash"`
	OutputIndex        uint64      `meddler:"l2_output_index"`
	L2BlockNumber      uint64      `meddler:"l2_block_number"`
	L1Timestamp        uint64      `meddler:"l1_timestamp"`
	L1TransactionHash  common.Hash `meddler:"l1_transaction_hash,hash"`
	L1BlockNumber      uint64      `meddler:"l1_block_number"`
	L1TransactionIndex uint64      `meddler:"l1_transaction_index"`
	L1BlockHash        common.Hash `meddler:"l1_block_hash,hash"`
}

// ArbitrumRootRecord is an Arbitrum SendRootUpdated event.
type ArbitrumRootRecord struct {
	ID                 int64       `meddler:"id,pk"`
	OutputRoot         common.Hash `meddler:"l2_output_root,hash"`
	L2BlockHash        common.Hash `meddler:"l2_block_hash,hash"`
	L2BlockNumber      uint64      `meddler:"l2_block_number"`
	L1TransactionHash  common.Hash `meddler:"l1_transaction_hash,hash"`
	L1BlockNumber      uint64      `meddler:"l1_block_number"`
	L1TransactionIndex uint64      `meddler:"l1_transaction_index"`
	L1BlockHash        common.Hash `meddler:"l1_block_hash,hash"`
}

// DisputeGameRecord is an enriched DisputeGameCreated event.
type DisputeGameRecord struct {
	ID          int64          `meddler:"id,pk"`
	GameIndex   uint64         `meddler:"game_index"`
	GameAddress common.Address `meddler:"game_address,address"`
	GameType    uint32         `meddler:"game_type"`
	Timestamp   uint64         `meddler:"timestamp"`
	RootClaim   common.Hash    `meddler:"root_claim,hash"`
	GameState   uint8          `meddler:"game_state"`
	Proposer    common.Address `meddler:"proposer_address,address"`
	// L2BlockNumber is the claimed block as returned by the game, which may exceed 64 bits.
	L2BlockNumber *big.Int `meddler:"l2_block_number,bigint"`
	// L2BlockNumberSafe is nil when L2BlockNumber does not fit the INTEGER column.
	L2BlockNumberSafe       *uint64      `meddler:"l2_block_number_safe"`
	L2StateRoot             *common.Hash `meddler:"l2_state_root,hash"`
	L2WithdrawalStorageRoot *common.Hash `meddler:"l2_withdrawal_storage_root,hash"`
	L2BlockHash             *common.Hash `meddler:"l2_block_hash,hash"`
	L1Timestamp             uint64       `meddler:"l1_timestamp"`
	L1TransactionHash       common.Hash  `meddler:"l1_transaction_hash,hash"`
	L1BlockNumber           uint64       `meddler:"l1_block_number"`
	L1TransactionIndex      uint64       `meddler:"l1_transaction_index"`
	L1BlockHash             common.Hash  `meddler:"l1_block_hash,hash"`
}

// IsAccepted reports whether a game may back withdrawal proofs: resolved in
// favor of the defender, or proposed by the trusted proposer and not lost.
func IsAccepted(state uint8, trusted bool) bool {
	return state == GameStatusDefenderWins ||
		(trusted && (state == GameStatusInProgress || state == GameStatusDefenderWins))
}
