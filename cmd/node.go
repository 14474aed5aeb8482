package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeyxx/CYNIC-sub012/anchor"
	"github.com/zeyxx/CYNIC-sub012/chain"
	"github.com/zeyxx/CYNIC-sub012/config"
	"github.com/zeyxx/CYNIC-sub012/consensus"
	"github.com/zeyxx/CYNIC-sub012/db"
	"github.com/zeyxx/CYNIC-sub012/events"
	"github.com/zeyxx/CYNIC-sub012/exception"
	"github.com/zeyxx/CYNIC-sub012/logx"
	"github.com/zeyxx/CYNIC-sub012/monitoring"
	"github.com/zeyxx/CYNIC-sub012/operator"
	"github.com/zeyxx/CYNIC-sub012/p2pserver"
	"github.com/zeyxx/CYNIC-sub012/store"
	"github.com/zeyxx/CYNIC-sub012/validator"
)

var tunablesPath string

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a PoJ chain node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func init() {
	nodeCmd.Flags().StringVar(&tunablesPath, "tunables", "", "path to chain tunables ini file")
	rootCmd.AddCommand(nodeCmd)
}

// openChainStore opens the configured database backend and wraps it in a
// chain store. Shared by node, export, import and verify commands.
func openChainStore(cfg *config.NodeConfig) (*store.ChainStore, error) {
	var provider db.DatabaseProvider
	var err error

	switch cfg.Backend {
	case "leveldb":
		provider, err = db.NewLevelDBProvider(filepath.Join(cfg.DataDir, "chain"))
	case "bolt":
		provider, err = db.NewBoltProvider(filepath.Join(cfg.DataDir, "chain.db"))
	case "memory":
		provider = db.NewMemoryProvider()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return store.NewChainStore(provider)
}

func buildRegistry(cfg *config.NodeConfig) (*operator.Registry, error) {
	if !cfg.MultiOperator {
		return nil, nil
	}
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("multi_operator requires key_file")
	}

	priv, err := config.LoadEd25519PrivKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load operator key: %w", err)
	}
	registry, err := operator.NewRegistry(priv, cfg.Quorum)
	if err != nil {
		return nil, err
	}
	for _, entry := range cfg.Operators {
		if err := registry.AddOperator(entry.PubKey); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func runNode() error {
	cfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		return err
	}
	tunables, err := config.LoadChainTunables(tunablesPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	monitoring.InitMetrics()

	chainStore, err := openChainStore(cfg)
	if err != nil {
		return err
	}
	defer chainStore.MustClose()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	anchors := anchor.NewManager(bus)
	p2p := consensus.NewP2PConsensus(bus, cfg.P2PNodeURL)
	blockValidator := validator.NewBlockValidator(registry, cfg.RequireSignatures, chainStore)

	manager := chain.NewManager(chain.Config{
		BatchSize:        tunables.BatchSize,
		BatchTimeout:     time.Duration(tunables.BatchTimeoutMs) * time.Millisecond,
		FinalityTimeout:  time.Duration(tunables.FinalityTimeoutMs) * time.Millisecond,
		AnchoringEnabled: cfg.AnchoringEnabled,
		LegacyPrefix:     cfg.LegacyPrefix,
	}, chainStore, blockValidator, anchors, p2p, registry, bus)

	if err := manager.Initialize(); err != nil {
		return err
	}

	// the in-process queue buffers payloads for the external submitter and
	// reports completions back through the manager callback
	queue := anchor.NewMemoryQueue()
	queue.OnAnchorComplete(anchors.HandleAnchorComplete)
	manager.SetAnchorQueue(queue)

	server := p2pserver.NewServer(manager, bus)
	server.Start(cfg.Listen)

	if cfg.MetricsListen != "" {
		metricsMux := http.NewServeMux()
		monitoring.RegisterMetrics(metricsMux)
		exception.SafeGo("metrics-server", func() {
			if err := http.ListenAndServe(cfg.MetricsListen, metricsMux); err != nil {
				logx.Error("MONITORING", "Metrics server stopped: ", err)
			}
		})
	}

	logx.Info("NODE", "PoJ node running | listen=", cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logx.Info("NODE", "Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logx.Error("NODE", "Server shutdown failed: ", err)
	}
	return manager.Close()
}
