package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
)

// Config represents the complete configuration for the RollupIndexor.
type Config struct {
	// Network selects the entry of Networks this process indexes, e.g. "optimism_sepolia"
	Network string `yaml:"network" json:"network" toml:"network"`

	// Networks is the registry of known networks
	Networks []NetworkConfig `yaml:"networks" json:"networks" toml:"networks"`

	// RPC contains the L1 and L2 endpoint configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// DB contains database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Follower configures the reorg-aware notification follower
	Follower *FollowerConfig `yaml:"follower,omitempty" json:"follower,omitempty" toml:"follower,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// RPCConfig holds the upstream endpoints.
type RPCConfig struct {
	// L1URL is the L1 execution client endpoint
	L1URL string `yaml:"l1_url" json:"l1_url" toml:"l1_url"`

	// L2URL is the L2 endpoint: the rollup node for OP Stack networks, the chain RPC for Arbitrum
	L2URL string `yaml:"l2_url" json:"l2_url" toml:"l2_url"`

	// Retry enables transport-level retries with exponential backoff. Failures are fatal without it
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode lets the query side read while the indexer writes
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}
	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}
	if d.Maintenance != nil {
		if err := d.Maintenance.Validate(); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
	}
	return nil
}

// MaintenanceConfig configures database maintenance behavior. Journal pruning
// and reorg reverts delete rows, so long running followers benefit from it.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode is one of PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if !slices.Contains([]string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}, m.WALCheckpointMode) {
		return fmt.Errorf("wal_checkpoint_mode must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
	}
	return nil
}

// FollowerConfig configures the reorg-aware follower.
type FollowerConfig struct {
	// Finality is the head the follower tracks: "latest", "safe" or "finalized"
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// PollInterval is how often the follower checks for new blocks
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// MaxBlocksPerNotification caps the size of a committed segment
	MaxBlocksPerNotification uint64 `yaml:"max_blocks_per_notification" json:"max_blocks_per_notification" toml:"max_blocks_per_notification"` //nolint:lll
}

// ApplyDefaults sets default values for optional follower fields.
func (f *FollowerConfig) ApplyDefaults() {
	if f.Finality == "" {
		f.Finality = "latest"
	}
	if f.PollInterval.Duration == 0 {
		f.PollInterval = common.NewDuration(12 * time.Second) //nolint:mnd
	}
	if f.MaxBlocksPerNotification == 0 {
		f.MaxBlocksPerNotification = 100
	}
}

// Validate checks if the follower configuration is valid.
func (f *FollowerConfig) Validate() error {
	if !slices.Contains([]string{"latest", "safe", "finalized"}, f.Finality) {
		return fmt.Errorf("finality must be one of: latest, safe, finalized")
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - engine: poll-based indexing loop
	//   - checkpoint-store: table storage and resume points
	//   - rpc: L1 and L2 clients
	//   - dispute-games: dispute game enrichment
	//   - reorg-follower: notification producer
	//   - reorg-consumer: commit/revert handling
	//   - metrics: metrics server
	//   - db-maintenance: WAL checkpoints and VACUUM
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.DB.ApplyDefaults()

	if c.RPC.Retry != nil {
		c.RPC.Retry.ApplyDefaults()
	}

	for i := range c.Networks {
		c.Networks[i].ApplyDefaults()
	}

	if c.Follower == nil {
		c.Follower = &FollowerConfig{}
	}
	c.Follower.ApplyDefaults()

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RPC.L1URL == "" {
		return fmt.Errorf("rpc.l1_url is required")
	}

	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("db: %w", err)
	}

	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	seen := make(map[NetworkID]struct{}, len(c.Networks))
	tables := make(map[string]struct{}, len(c.Networks))
	for i := range c.Networks {
		n := &c.Networks[i]
		if err := n.Validate(); err != nil {
			return fmt.Errorf("networks[%d] (%s): %w", i, n.ID(), err)
		}

		if _, dup := seen[n.ID()]; dup {
			return fmt.Errorf("networks[%d]: duplicate network '%s'", i, n.ID())
		}
		seen[n.ID()] = struct{}{}

		if _, dup := tables[n.Table]; dup {
			return fmt.Errorf("networks[%d] (%s): duplicate table '%s'", i, n.ID(), n.Table)
		}
		tables[n.Table] = struct{}{}
	}

	if c.Network != "" {
		network, err := c.SelectedNetwork()
		if err != nil {
			return err
		}
		if (network.IsArbitrum() || network.IsFDGEligible()) && c.RPC.L2URL == "" {
			return fmt.Errorf("rpc.l2_url is required for network '%s'", network.ID())
		}
	}

	if c.Follower != nil {
		if err := c.Follower.Validate(); err != nil {
			return fmt.Errorf("follower: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// Lookup returns the registry entry for the given network.
func (c *Config) Lookup(id NetworkID) (*NetworkConfig, error) {
	for i := range c.Networks {
		if c.Networks[i].ID() == id {
			return &c.Networks[i], nil
		}
	}
	return nil, fmt.Errorf("network '%s' is not configured", id)
}

// SelectedNetwork returns the network named by the Network field.
func (c *Config) SelectedNetwork() (*NetworkConfig, error) {
	id, err := ParseNetworkID(c.Network)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return c.Lookup(id)
}
