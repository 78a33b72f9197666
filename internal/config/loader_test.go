package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_Examples(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "yaml", path: "../../config.example.yaml"},
		{name: "json", path: "../../config.example.json"},
		{name: "toml", path: "../../config.example.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(tt.path)
			require.NoError(t, err)
			validateConfig(t, cfg, tt.name)
		})
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.ErrorContains(t, err, "unsupported config file format")
}

func TestLoadFromFile_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{
			name: "missing l1 url",
			file: "cfg.yaml",
			content: `
db:
  path: ./x.db
networks:
  - name: base
    environment: mainnet
    l1_contract: "0x56315b90c40730925ec5485cf004d835058518A0"
`,
			errMsg: "rpc.l1_url is required",
		},
		{
			name: "factory without transition block",
			file: "cfg.json",
			content: `{
  "rpc": {"l1_url": "http://l1", "l2_url": "http://l2"},
  "db": {"path": "./x.db"},
  "networks": [{
    "name": "optimism",
    "environment": "sepolia",
    "l1_contract": "0x90E9c4f8a994a250F6aEfd61CAFb4F2e895D458F",
    "dispute_game_factory": "0x05F9613aDB30026FFd634f38e5C4dFd30a197Fa1",
    "dispute_game_factory_deployment_block": 5000000,
    "trusted_proposer_address": "0x49277EE36A024120Ee218127354c4a3591dc90A9"
  }]
}`,
			errMsg: "fdg_transition_block is required",
		},
		{
			name: "unknown selected network",
			file: "cfg.toml",
			content: `
network = "zora_goerli"

[rpc]
l1_url = "http://l1"

[db]
path = "./x.db"

[[networks]]
name = "base"
environment = "mainnet"
l1_contract = "0x56315b90c40730925ec5485cf004d835058518A0"
`,
			errMsg: "network 'zora_goerli' is not configured",
		},
		{
			name:    "malformed yaml",
			file:    "cfg.yml",
			content: "networks: [",
			errMsg:  "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := LoadFromFile(path)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.RPC.L1URL, "[%s] rpc.l1_url should not be empty", format)
	require.NotEmpty(t, cfg.DB.Path, "[%s] db.path should not be empty", format)
	require.Equal(t, "WAL", cfg.DB.JournalMode, "[%s] db.journal_mode should have default value", format)
	require.Equal(t, "NORMAL", cfg.DB.Synchronous, "[%s] db.synchronous should have default value", format)
	require.Len(t, cfg.Networks, 2, "[%s] networks", format)

	require.NotNil(t, cfg.DB.Maintenance, "[%s] db.maintenance", format)
	require.Equal(t, 30*time.Minute, cfg.DB.Maintenance.CheckInterval.Duration)
	require.Equal(t, "TRUNCATE", cfg.DB.Maintenance.WALCheckpointMode)

	network, err := cfg.SelectedNetwork()
	require.NoError(t, err)
	require.Equal(t, "optimism_mainnet", network.Table)
	require.True(t, network.IsFDGEligible())
	require.Equal(t, 12*time.Second, network.PollInterval.Duration)
	require.Equal(t, uint64(1000), network.BatchSize)

	transition, ok := network.TransitionBlock()
	require.True(t, ok)
	require.Equal(t, uint64(20060000), transition)

	// trusted proposer is lower-cased at load time
	require.Equal(t, "0x473300df21d047806a082244b417f96b32f13a33", network.TrustedProposerAddress)

	arbitrum, err := cfg.Lookup(config.NetworkID{Name: config.ChainArbitrum, Environment: config.EnvironmentMainnet})
	require.NoError(t, err)
	require.True(t, arbitrum.IsArbitrum())
	require.False(t, arbitrum.IsFDGEligible())
	require.Equal(t, uint64(2000), arbitrum.BatchSize)
}

func TestLoad_NetworkOverride(t *testing.T) {
	cfg, err := Load("../../config.example.yaml", "ARBITRUM_mainnet")
	require.NoError(t, err)

	network, err := cfg.SelectedNetwork()
	require.NoError(t, err)
	require.True(t, network.IsArbitrum())

	_, err = Load("../../config.example.yaml", "base_goerli")
	require.ErrorContains(t, err, "network 'base_goerli' is not configured")
}

func TestLoad_ExpandsEndpoints(t *testing.T) {
	t.Setenv("L1_API_KEY", "secret")

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  l1_url: https://eth.example.com/v2/${L1_API_KEY}
db:
  path: ./x.db
networks:
  - name: base
    environment: mainnet
    l1_contract: "0x56315b90c40730925ec5485cf004d835058518A0"
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://eth.example.com/v2/secret", cfg.RPC.L1URL)
}
