package config

import (
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/RollupIndexor/internal/common"
)

// ChainName identifies a rollup.
type ChainName string

const (
	ChainArbitrum ChainName = "arbitrum"
	ChainBase     ChainName = "base"
	ChainOptimism ChainName = "optimism"
	ChainZora     ChainName = "zora"
)

// IsValid reports whether the chain name is supported.
func (c ChainName) IsValid() bool {
	switch c {
	case ChainArbitrum, ChainBase, ChainOptimism, ChainZora:
		return true
	default:
		return false
	}
}

// Environment identifies the L1 network a rollup settles on.
type Environment string

const (
	EnvironmentMainnet Environment = "mainnet"
	EnvironmentSepolia Environment = "sepolia"
	EnvironmentGoerli  Environment = "goerli"
)

// IsValid reports whether the environment is supported.
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentMainnet, EnvironmentSepolia, EnvironmentGoerli:
		return true
	default:
		return false
	}
}

// NetworkID is the (chain name, environment) pair, written as "optimism_sepolia".
type NetworkID struct {
	Name        ChainName
	Environment Environment
}

// String returns the canonical "{name}_{environment}" form.
func (n NetworkID) String() string {
	return fmt.Sprintf("%s_%s", n.Name, n.Environment)
}

// ParseNetworkID parses "{name}_{environment}" case-insensitively.
func ParseNetworkID(s string) (NetworkID, error) {
	name, env, found := strings.Cut(common.ToLowerWithTrim(s), "_")
	if !found {
		return NetworkID{}, fmt.Errorf("invalid network %q: expected {name}_{environment}", s)
	}

	id := NetworkID{Name: ChainName(name), Environment: Environment(env)}
	if !id.Name.IsValid() {
		return NetworkID{}, fmt.Errorf("invalid network %q: unknown chain name %q", s, name)
	}
	if !id.Environment.IsValid() {
		return NetworkID{}, fmt.Errorf("invalid network %q: unknown environment %q", s, env)
	}

	return id, nil
}

// NetworkConfig holds the static parameters of one indexed network.
type NetworkConfig struct {
	// Name is the rollup name: optimism, base, zora or arbitrum
	Name ChainName `yaml:"name" json:"name" toml:"name"`

	// Environment is the settlement layer: mainnet, sepolia or goerli
	Environment Environment `yaml:"environment" json:"environment" toml:"environment"`

	// Table is the base name of the output table. Defaults to "{name}_{environment}"
	Table string `yaml:"table,omitempty" json:"table,omitempty" toml:"table,omitempty"`

	// L1Contract is the L2OutputOracle (OP Stack) or Rollup (Arbitrum) contract on L1
	L1Contract string `yaml:"l1_contract" json:"l1_contract" toml:"l1_contract"`

	// L1ContractDeploymentBlock is where scanning of the L1 contract starts
	L1ContractDeploymentBlock uint64 `yaml:"l1_contract_deployment_block" json:"l1_contract_deployment_block" toml:"l1_contract_deployment_block"` //nolint:lll

	// DisputeGameFactory is the DisputeGameFactory proxy. Setting it makes the network FDG-eligible
	DisputeGameFactory string `yaml:"dispute_game_factory,omitempty" json:"dispute_game_factory,omitempty" toml:"dispute_game_factory,omitempty"` //nolint:lll

	// DisputeGameFactoryDeploymentBlock is where the dispute game stream starts
	DisputeGameFactoryDeploymentBlock *uint64 `yaml:"dispute_game_factory_deployment_block,omitempty" json:"dispute_game_factory_deployment_block,omitempty" toml:"dispute_game_factory_deployment_block,omitempty"` //nolint:lll

	// FDGTransitionBlock is the first L1 block no longer covered by the output oracle stream
	FDGTransitionBlock *uint64 `yaml:"fdg_transition_block,omitempty" json:"fdg_transition_block,omitempty" toml:"fdg_transition_block,omitempty"` //nolint:lll

	// TrustedProposerAddress is the proposer whose in-progress games are accepted
	TrustedProposerAddress string `yaml:"trusted_proposer_address,omitempty" json:"trusted_proposer_address,omitempty" toml:"trusted_proposer_address,omitempty"` //nolint:lll

	// BlockDelay is the number of confirmations kept between the L1 head and the scanned range
	BlockDelay uint64 `yaml:"block_delay" json:"block_delay" toml:"block_delay"`

	// PollInterval is the sleep between scans once the safe head is reached
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// BatchSize is the number of blocks per eth_getLogs window
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
}

// ID returns the network identifier.
func (n *NetworkConfig) ID() NetworkID {
	return NetworkID{Name: n.Name, Environment: n.Environment}
}

// IsArbitrum reports whether the network uses the Arbitrum event family.
func (n *NetworkConfig) IsArbitrum() bool {
	return n.Name == ChainArbitrum
}

// IsFDGEligible reports whether the network indexes dispute games alongside output proposals.
func (n *NetworkConfig) IsFDGEligible() bool {
	return !n.IsArbitrum() && n.DisputeGameFactory != ""
}

// L1ContractAddress returns the parsed L1 contract address.
func (n *NetworkConfig) L1ContractAddress() ethcommon.Address {
	return ethcommon.HexToAddress(n.L1Contract)
}

// DisputeGameFactoryAddress returns the parsed factory address.
func (n *NetworkConfig) DisputeGameFactoryAddress() ethcommon.Address {
	return ethcommon.HexToAddress(n.DisputeGameFactory)
}

// TrustedProposer returns the trusted proposer, if configured.
func (n *NetworkConfig) TrustedProposer() (ethcommon.Address, bool) {
	if n.TrustedProposerAddress == "" {
		return ethcommon.Address{}, false
	}
	return ethcommon.HexToAddress(n.TrustedProposerAddress), true
}

// TransitionBlock returns the FDG transition block, if configured.
func (n *NetworkConfig) TransitionBlock() (uint64, bool) {
	if n.FDGTransitionBlock == nil {
		return 0, false
	}
	return *n.FDGTransitionBlock, true
}

// FactoryDeploymentBlock returns the dispute game factory deployment block, if configured.
func (n *NetworkConfig) FactoryDeploymentBlock() (uint64, bool) {
	if n.DisputeGameFactoryDeploymentBlock == nil {
		return 0, false
	}
	return *n.DisputeGameFactoryDeploymentBlock, true
}

// DisputeGamesTable returns the auxiliary dispute game table name.
func (n *NetworkConfig) DisputeGamesTable() string {
	return n.Table + "_fault_dispute_games"
}

// ApplyDefaults sets default values for optional network fields.
func (n *NetworkConfig) ApplyDefaults() {
	n.Name = ChainName(common.ToLowerWithTrim(string(n.Name)))
	n.Environment = Environment(common.ToLowerWithTrim(string(n.Environment)))

	if n.Table == "" {
		n.Table = n.ID().String()
	}
	if n.BatchSize == 0 {
		n.BatchSize = 1000
	}
	if n.PollInterval.Duration == 0 {
		n.PollInterval = common.NewDuration(12 * time.Second) //nolint:mnd
	}

	n.TrustedProposerAddress = common.ToLowerWithTrim(n.TrustedProposerAddress)
}

// Validate checks that the network carries every field its code paths need.
func (n *NetworkConfig) Validate() error {
	if !n.Name.IsValid() {
		return fmt.Errorf("name: unknown chain %q", n.Name)
	}
	if !n.Environment.IsValid() {
		return fmt.Errorf("environment: unknown environment %q", n.Environment)
	}
	if !isValidTableName(n.Table) {
		return fmt.Errorf("table: %q must contain only letters, digits and underscores", n.Table)
	}
	if !ethcommon.IsHexAddress(n.L1Contract) {
		return fmt.Errorf("l1_contract: invalid address %q", n.L1Contract)
	}
	if n.TrustedProposerAddress != "" && !ethcommon.IsHexAddress(n.TrustedProposerAddress) {
		return fmt.Errorf("trusted_proposer_address: invalid address %q", n.TrustedProposerAddress)
	}

	if n.DisputeGameFactory == "" {
		if n.FDGTransitionBlock != nil {
			return fmt.Errorf("fdg_transition_block: requires dispute_game_factory")
		}
		return nil
	}

	if n.IsArbitrum() {
		return fmt.Errorf("dispute_game_factory: not supported for arbitrum networks")
	}
	if !ethcommon.IsHexAddress(n.DisputeGameFactory) {
		return fmt.Errorf("dispute_game_factory: invalid address %q", n.DisputeGameFactory)
	}
	if n.FDGTransitionBlock == nil {
		return fmt.Errorf("fdg_transition_block is required when dispute_game_factory is set")
	}
	if n.DisputeGameFactoryDeploymentBlock == nil {
		return fmt.Errorf("dispute_game_factory_deployment_block is required when dispute_game_factory is set")
	}
	if n.TrustedProposerAddress == "" {
		return fmt.Errorf("trusted_proposer_address is required when dispute_game_factory is set")
	}

	return nil
}

func isValidTableName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
