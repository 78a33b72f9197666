package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
)

// Event signatures of the state commitment contracts.
const (
	OutputProposedSignature     = "OutputProposed(bytes32,uint256,uint256,uint256)"
	DisputeGameCreatedSignature = "DisputeGameCreated(address,uint32,bytes32)"
	SendRootUpdatedSignature    = "SendRootUpdated(bytes32,bytes32)"
)

var (
	OutputProposedTopic     = crypto.Keccak256Hash([]byte(OutputProposedSignature))
	DisputeGameCreatedTopic = crypto.Keccak256Hash([]byte(DisputeGameCreatedSignature))
	SendRootUpdatedTopic    = crypto.Keccak256Hash([]byte(SendRootUpdatedSignature))
)

// Kind is the rollup stack a network is built on.
type Kind uint8

const (
	KindOpStack Kind = iota
	KindArbitrum
)

func (k Kind) String() string {
	switch k {
	case KindOpStack:
		return "opstack"
	case KindArbitrum:
		return "arbitrum"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// StreamKind names an independent event stream of a network.
type StreamKind string

const (
	StreamLegacy   StreamKind = "legacy"
	StreamFDG      StreamKind = "fdg"
	StreamArbitrum StreamKind = "arbitrum"
)

// Stream is one contract event stream with its own cursor.
type Stream struct {
	Kind    StreamKind
	Address common.Address
	Topic   common.Hash
	// Start is the first L1 block scanned when the stream has no rows yet.
	Start uint64
	// End, when set, is the first L1 block the stream must never scan.
	End *uint64
}

// Query builds the log filter for the inclusive range [from, to].
func (s Stream) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.Address},
		Topics:    [][]common.Hash{{s.Topic}},
	}
}

// Finished reports whether the cursor has reached the stream's end block.
func (s Stream) Finished(cursor uint64) bool {
	return s.End != nil && cursor >= *s.End
}

// Window computes the next inclusive scan range for the stream. ok is false
// when there is nothing to scan: the safe head is behind the cursor or the
// stream has reached its end block.
func (s Stream) Window(cursor, safeHead, batchSize uint64) (from, to uint64, ok bool) {
	if s.Finished(cursor) || safeHead < cursor || batchSize == 0 {
		return 0, 0, false
	}

	to = min(cursor+batchSize-1, safeHead)
	if s.End != nil {
		to = min(to, *s.End-1)
	}

	return cursor, to, true
}

// Family carries the event streams of a network, built once from its config.
type Family struct {
	kind    Kind
	streams []Stream
}

// FromNetwork resolves the chain family and event streams of a network.
func FromNetwork(n *config.NetworkConfig) (Family, error) {
	if n.IsArbitrum() {
		return Family{
			kind: KindArbitrum,
			streams: []Stream{{
				Kind:    StreamArbitrum,
				Address: n.L1ContractAddress(),
				Topic:   SendRootUpdatedTopic,
				Start:   n.L1ContractDeploymentBlock,
			}},
		}, nil
	}

	legacy := Stream{
		Kind:    StreamLegacy,
		Address: n.L1ContractAddress(),
		Topic:   OutputProposedTopic,
		Start:   n.L1ContractDeploymentBlock,
	}

	transition, ok := n.TransitionBlock()
	if ok {
		legacy.End = &transition
	}

	if !n.IsFDGEligible() {
		return Family{kind: KindOpStack, streams: []Stream{legacy}}, nil
	}

	if !ok {
		return Family{}, fmt.Errorf("network %s: fdg_transition_block is required with a dispute game factory", n.ID())
	}
	factoryStart, ok := n.FactoryDeploymentBlock()
	if !ok {
		return Family{}, fmt.Errorf("network %s: dispute_game_factory_deployment_block is required "+
			"with a dispute game factory", n.ID())
	}
	if _, ok := n.TrustedProposer(); !ok {
		return Family{}, fmt.Errorf("network %s: trusted_proposer_address is required with a dispute game factory", n.ID())
	}

	return Family{
		kind: KindOpStack,
		streams: []Stream{
			legacy,
			{
				Kind:    StreamFDG,
				Address: n.DisputeGameFactoryAddress(),
				Topic:   DisputeGameCreatedTopic,
				Start:   factoryStart,
			},
		},
	}, nil
}

// Kind returns the rollup stack of the family.
func (f Family) Kind() Kind {
	return f.kind
}

// IsArbitrum reports whether the family is Arbitrum.
func (f Family) IsArbitrum() bool {
	return f.kind == KindArbitrum
}

// HasDisputeGames reports whether the family runs a dispute game stream.
func (f Family) HasDisputeGames() bool {
	_, ok := f.Stream(StreamFDG)
	return ok
}

// Streams returns the streams in processing order.
func (f Family) Streams() []Stream {
	return f.streams
}

// Stream returns the stream of the given kind.
func (f Family) Stream(kind StreamKind) (Stream, bool) {
	for _, s := range f.streams {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stream{}, false
}

// Query builds one log filter matching every stream of the family over [from, to].
func (f Family) Query(from, to uint64) ethereum.FilterQuery {
	addresses := make([]common.Address, 0, len(f.streams))
	topics := make([]common.Hash, 0, len(f.streams))
	for _, s := range f.streams {
		addresses = append(addresses, s.Address)
		topics = append(topics, s.Topic)
	}

	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	}
}

// StreamOf returns the stream a log belongs to.
func (f Family) StreamOf(address common.Address, topic common.Hash) (Stream, bool) {
	for _, s := range f.streams {
		if s.Address == address && s.Topic == topic {
			return s, true
		}
	}
	return Stream{}, false
}
