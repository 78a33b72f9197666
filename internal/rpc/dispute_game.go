package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
)

// DisputeGameABI is the subset of the fault dispute game interface the indexer reads.
const DisputeGameABI = `[
	{"type":"function","name":"status","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"createdAt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"gameCreator","stateMutability":"pure","inputs":[],"outputs":[{"name":"creator_","type":"address"}]},
	{"type":"function","name":"l2BlockNumber","stateMutability":"pure","inputs":[],"outputs":[{"name":"l2BlockNumber_","type":"uint256"}]}
]`

// Compile-time check to ensure DisputeGameCaller implements pkgrpc.DisputeGameCaller interface.
var _ pkgrpc.DisputeGameCaller = (*DisputeGameCaller)(nil)

// DisputeGameCaller performs read-only calls against dispute game contracts.
type DisputeGameCaller struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
}

// NewDisputeGameCaller creates a caller issuing eth_call through the given backend.
func NewDisputeGameCaller(caller ethereum.ContractCaller) (*DisputeGameCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(DisputeGameABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dispute game ABI: %w", err)
	}

	return &DisputeGameCaller{caller: caller, abi: parsed}, nil
}

// Status returns the game status: 0 in progress, 1 challenger wins, 2 defender wins.
func (d *DisputeGameCaller) Status(ctx context.Context, game common.Address) (uint8, error) {
	out, err := d.call(ctx, game, "status")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil //nolint:forcetypeassert
}

// CreatedAt returns the game creation timestamp in seconds.
func (d *DisputeGameCaller) CreatedAt(ctx context.Context, game common.Address) (uint64, error) {
	out, err := d.call(ctx, game, "createdAt")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil //nolint:forcetypeassert
}

// GameCreator returns the address that created the game.
func (d *DisputeGameCaller) GameCreator(ctx context.Context, game common.Address) (common.Address, error) {
	out, err := d.call(ctx, game, "gameCreator")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil //nolint:forcetypeassert
}

// L2BlockNumber returns the L2 block number the game's root claim commits to.
func (d *DisputeGameCaller) L2BlockNumber(ctx context.Context, game common.Address) (*big.Int, error) {
	out, err := d.call(ctx, game, "l2BlockNumber")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil //nolint:forcetypeassert
}

func (d *DisputeGameCaller) call(ctx context.Context, game common.Address, method string) ([]any, error) {
	data, err := d.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := d.caller.CallContract(ctx, ethereum.CallMsg{To: &game, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on game %s: %w", method, game.Hex(), err)
	}

	out, err := d.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from game %s: %w", method, game.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d from game %s", method, len(out), game.Hex())
	}

	return out, nil
}
