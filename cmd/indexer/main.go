package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	"github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/config"
	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/engine"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/metrics"
	"github.com/goran-ethernal/RollupIndexor/internal/reorg"
	"github.com/goran-ethernal/RollupIndexor/internal/rpc"
	"github.com/goran-ethernal/RollupIndexor/internal/store"
	pkgconfig "github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         RollupIndexor v%s              ║
║   L1 Rollup State Commitment Indexer      ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	network    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var fatal *engine.FatalError
		if errors.As(err, &fatal) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "RollupIndexor - L1 rollup state commitment indexer",
	Long: `RollupIndexor scans L1 for the state commitments rollups post there
(OP Stack output proposals and dispute games, Arbitrum send roots) and keeps
them in a local SQLite checkpoint store.`,
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index the selected network by polling L1 in block windows",
	RunE:  runEngine,
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Index the selected network following the L1 head with reorg handling",
	RunE:  runFollower,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "",
		"network to index, e.g. optimism_sepolia (overrides the config file)")

	rootCmd.AddCommand(runCmd, followCmd, queryCmd, networksCmd, schemaCmd)
}

// loadConfig reads the config file and applies the --network override.
func loadConfig() (*pkgconfig.Config, error) {
	cfg, err := config.Load(configPath, network)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// app holds the components shared by the run and follow commands.
type app struct {
	cfg      *pkgconfig.Config
	network  *pkgconfig.NetworkConfig
	family   chain.Family
	store    *store.Store
	maint    *db.Maintainer
	l1       *rpc.Client
	l2       *rpc.RollupClient
	games    *events.DisputeGameEnricher
	roots    *events.ArbitrumResolver
	log      *logger.Logger
	closeFns []func()
}

func newApp(ctx context.Context, cfg *pkgconfig.Config, withRPC bool) (*app, error) {
	selected, err := cfg.SelectedNetwork()
	if err != nil {
		return nil, err
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentEngine, cfg.Logging)
	logger.SetDefaultLogger(log)

	family, err := chain.FromNetwork(selected)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, network: selected, family: family, log: log}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { database.Close() })

	a.store, err = store.New(database, selected, family,
		logger.NewComponentLoggerFromConfig(common.ComponentCheckpointStore, cfg.Logging))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	a.maint = db.NewMaintainer(database, cfg.DB.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging))
	a.store.SetOperationLocker(a.maint)

	if !withRPC {
		return a, nil
	}

	if err := a.connect(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// connect dials the L1 endpoint and, for networks that need it, the L2 one.
func (a *app) connect(ctx context.Context) error {
	rpcLog := logger.NewComponentLoggerFromConfig(common.ComponentRPC, a.cfg.Logging)

	a.log.Info("Connecting to L1 node...")
	l1, err := rpc.NewClient(ctx, a.cfg.RPC.L1URL, a.cfg.RPC.Retry, rpcLog)
	if err != nil {
		return fmt.Errorf("failed to create L1 client: %w", err)
	}
	a.l1 = l1
	a.closeFns = append(a.closeFns, l1.Close)

	if !a.family.HasDisputeGames() && !a.family.IsArbitrum() {
		return nil
	}

	l2, err := rpc.NewRollupClient(ctx, a.cfg.RPC.L2URL, a.cfg.RPC.Retry, rpcLog)
	if err != nil {
		return fmt.Errorf("failed to create L2 client: %w", err)
	}
	a.l2 = l2
	a.closeFns = append(a.closeFns, l2.Close)

	if a.family.IsArbitrum() {
		a.roots = events.NewArbitrumResolver(l2)
		return nil
	}

	caller, err := rpc.NewDisputeGameCaller(l1)
	if err != nil {
		return fmt.Errorf("failed to create dispute game caller: %w", err)
	}
	a.games, err = events.NewDisputeGameEnricher(a.network, caller, l2, l1,
		logger.NewComponentLoggerFromConfig(common.ComponentDisputeGames, a.cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create dispute game enricher: %w", err)
	}
	return nil
}

// enricher returns the dispute game enricher as a port, nil when the network has none.
func (a *app) enricher() engine.GameEnricher {
	if a.games == nil {
		return nil
	}
	return a.games
}

// resolver returns the send root resolver as a port, nil when the network has none.
func (a *app) resolver() engine.RootResolver {
	if a.roots == nil {
		return nil
	}
	return a.roots
}

func (a *app) close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
}

// serve runs fn next to the metrics server and database maintenance until ctx is cancelled or either fails.
func (a *app) serve(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	server := metrics.NewServer(a.cfg.Metrics,
		logger.NewComponentLoggerFromConfig(common.ComponentMetrics, a.cfg.Logging))
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return a.maint.Run(ctx) })
	g.Go(func() error {
		// the helpers stop once the indexer returns
		defer cancel()
		return fn(ctx)
	})

	return g.Wait()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runEngine(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	runtime, err := engine.NewRuntimeConfig(a.network)
	if err != nil {
		return err
	}

	e, err := engine.New(runtime, a.l1, a.store, a.enricher(), a.resolver(),
		logger.NewComponentLoggerFromConfig(common.ComponentEngine, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	a.log.Infof("Starting RollupIndexor for %s...", a.network.ID())
	if err := a.serve(ctx, e.Run); err != nil {
		a.log.Errorw("indexing stopped", "network", a.network.ID().String(), "error", err)
		return err
	}

	a.log.Info("RollupIndexor stopped successfully")
	return nil
}

func runFollower(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	// follow from the earliest block any stream still needs
	start := uint64(0)
	for i, stream := range a.family.Streams() {
		from, err := a.store.StartBlock(ctx, stream)
		if err != nil {
			return err
		}
		if i == 0 || from < start {
			start = from
		}
	}

	var transition *uint64
	if a.family.HasDisputeGames() {
		transition = a.network.FDGTransitionBlock
	}

	consumer, err := reorg.NewConsumer(a.family, transition, a.store, a.enricher(), a.resolver(),
		logger.NewComponentLoggerFromConfig(common.ComponentReorgConsumer, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	follower, err := reorg.NewFollower(a.store.DB(), a.network, a.family, cfg.Follower, a.l1, start,
		logger.NewComponentLoggerFromConfig(common.ComponentReorgFollower, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create follower: %w", err)
	}
	follower.SetOperationLocker(a.maint)

	a.log.Infof("Following L1 for %s from block %d...", a.network.ID(), start)
	err = a.serve(ctx, func(ctx context.Context) error {
		return follower.Run(ctx, consumer)
	})
	if err != nil {
		return err
	}

	a.log.Info("RollupIndexor stopped successfully")
	return nil
}
