package events

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
)

var ErrUnexpectedEvent = errors.New("unexpected event")

// DisputeGameCreated holds the fields of a DisputeGameCreated log that need no RPC.
type DisputeGameCreated struct {
	Game      common.Address
	GameType  uint32
	RootClaim common.Hash
}

// ParseOutputProposed decodes a legacy OutputProposed log.
func ParseOutputProposed(log types.Log) (*OutputRecord, error) {
	if err := checkTopics(log, chain.OutputProposedTopic, 4); err != nil {
		return nil, err
	}

	outputIndex, err := topicUint64(log.Topics[2], "l2OutputIndex")
	if err != nil {
		return nil, err
	}
	l2Block, err := topicUint64(log.Topics[3], "l2BlockNumber")
	if err != nil {
		return nil, err
	}
	l1Timestamp, err := wordUint64(log.Data, "l1Timestamp")
	if err != nil {
		return nil, err
	}

	return &OutputRecord{
		OutputRoot:         log.Topics[1],
		OutputIndex:        outputIndex,
		L2BlockNumber:      l2Block,
		L1Timestamp:        l1Timestamp,
		L1TransactionHash:  log.TxHash,
		L1BlockNumber:      log.BlockNumber,
		L1TransactionIndex: uint64(log.TxIndex),
		L1BlockHash:        log.BlockHash,
	}, nil
}

// ParseSendRootUpdated decodes an Arbitrum SendRootUpdated log. The L2 block
// number is not part of the event and is left for ArbitrumResolver.
func ParseSendRootUpdated(log types.Log) (*ArbitrumRootRecord, error) {
	if err := checkTopics(log, chain.SendRootUpdatedTopic, 3); err != nil {
		return nil, err
	}

	return &ArbitrumRootRecord{
		OutputRoot:         log.Topics[1],
		L2BlockHash:        log.Topics[2],
		L1TransactionHash:  log.TxHash,
		L1BlockNumber:      log.BlockNumber,
		L1TransactionIndex: uint64(log.TxIndex),
		L1BlockHash:        log.BlockHash,
	}, nil
}

// ParseDisputeGameCreated decodes the indexed fields of a DisputeGameCreated log.
func ParseDisputeGameCreated(log types.Log) (*DisputeGameCreated, error) {
	if err := checkTopics(log, chain.DisputeGameCreatedTopic, 4); err != nil {
		return nil, err
	}

	// uint32 is right aligned in the topic word
	gameType := binary.BigEndian.Uint32(log.Topics[2][common.HashLength-4:])

	return &DisputeGameCreated{
		Game:      common.BytesToAddress(log.Topics[1].Bytes()),
		GameType:  gameType,
		RootClaim: log.Topics[3],
	}, nil
}

func checkTopics(log types.Log, topic common.Hash, count int) error {
	if len(log.Topics) == 0 || log.Topics[0] != topic {
		return fmt.Errorf("%w in tx %s: not %s", ErrUnexpectedEvent, log.TxHash.Hex(), topic.Hex())
	}
	if len(log.Topics) != count {
		return fmt.Errorf("log in tx %s has %d topics, expected %d", log.TxHash.Hex(), len(log.Topics), count)
	}
	return nil
}

func topicUint64(topic common.Hash, field string) (uint64, error) {
	return wordUint64(topic.Bytes(), field)
}

func wordUint64(word []byte, field string) (uint64, error) {
	if len(word) != common.HashLength {
		return 0, fmt.Errorf("%s: expected a 32 byte word, got %d bytes", field, len(word))
	}

	v := new(big.Int).SetBytes(word)
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: value %s overflows uint64", field, v)
	}
	return v.Uint64(), nil
}
