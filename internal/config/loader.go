package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/goran-ethernal/RollupIndexor/pkg/config"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file, auto-detecting the format by extension.
// Supported formats: .yaml, .yml, .json, .toml
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	return Load(path, "")
}

// Load reads the configuration file and selects network when it is not empty,
// overriding the file's own selection. Defaults are applied and the result is
// validated once the selection is final.
func Load(path, network string) (*pkgconfig.Config, error) {
	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}

	if network != "" {
		cfg.Network = network
	}

	return processConfig(cfg)
}

func decode(path string) (*pkgconfig.Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var unmarshal func([]byte, any) error
	switch ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	case ".toml":
		unmarshal = toml.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config
	if err := unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", formatName(ext), err)
	}
	return &cfg, nil
}

func formatName(ext string) string {
	switch ext {
	case ".yaml", ".yml":
		return "YAML"
	case ".json":
		return "JSON"
	default:
		return "TOML"
	}
}

// processConfig expands environment variables in endpoints, applies defaults
// and validates the configuration.
func processConfig(cfg *pkgconfig.Config) (*pkgconfig.Config, error) {
	// endpoints usually carry provider API keys
	cfg.RPC.L1URL = os.ExpandEnv(cfg.RPC.L1URL)
	cfg.RPC.L2URL = os.ExpandEnv(cfg.RPC.L2URL)

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
