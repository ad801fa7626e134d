package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-metaraft/pkg/features"
	"github.com/dd0wney/cluso-metaraft/pkg/gossip"
	"github.com/dd0wney/cluso-metaraft/pkg/group0"
	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/metrics"
	"github.com/dd0wney/cluso-metaraft/pkg/migration"
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
	"github.com/dd0wney/cluso-metaraft/pkg/rpc"
	"github.com/dd0wney/cluso-metaraft/pkg/sysstore"
)

// NodeConfig is the YAML configuration for one metaraft node
type NodeConfig struct {
	// Address is this node's stable listen address, e.g. tcp://10.0.0.1:7700
	Address string `yaml:"address" validate:"required"`

	// DataDir holds the durable system store
	DataDir string `yaml:"data_dir" validate:"required"`

	// ContactNodes seed discovery on a fresh bootstrap
	ContactNodes []string `yaml:"contact_nodes"`

	// RaftEnabled turns the consensus engine on for this node
	RaftEnabled bool `yaml:"raft_enabled"`

	// SupportsRaft marks the cluster-wide consensus feature as already
	// enabled; leave false to exercise the legacy upgrade path
	SupportsRaft bool `yaml:"supports_raft"`

	// MetricsPort serves prometheus metrics over HTTP; 0 disables it
	MetricsPort int `yaml:"metrics_port" validate:"min=0,max=65535"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

func defaultNodeConfig() NodeConfig {
	return NodeConfig{
		Address:      "tcp://127.0.0.1:7700",
		DataDir:      "./data/metaraft",
		RaftEnabled:  true,
		SupportsRaft: true,
		MetricsPort:  9090,
		LogLevel:     "info",
	}
}

func loadConfig(path string) (NodeConfig, error) {
	cfg := defaultNodeConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configFile = flag.String("config", "", "YAML config file")
		address    = flag.String("address", "", "Listen address (overrides config)")
		dataDir    = flag.String("data", "", "Data directory (overrides config)")
		contacts   = flag.String("join", "", "Comma-separated contact nodes (overrides config)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *contacts != "" {
		cfg.ContactNodes = strings.Split(*contacts, ",")
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logger.Info("metaraft node starting",
		logging.Address(cfg.Address),
		logging.String("data_dir", cfg.DataDir))

	if err := run(cfg, logger); err != nil {
		logger.Error("node failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg NodeConfig, logger logging.Logger) error {
	store, err := sysstore.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open system store: %w", err)
	}
	defer store.Close()

	if cfg.MetricsPort > 0 {
		go serveMetrics(cfg.MetricsPort, logger)
	}

	// Single-process consensus engine. A production deployment swaps in
	// a registry backed by the real engine; the orchestration above it
	// is identical.
	cluster := raft.NewInMemCluster()
	registry := raft.NewInMemRegistry(cluster, cfg.RaftEnabled)

	var feat *features.Service
	if cfg.SupportsRaft {
		feat = features.NewService(features.FeatureSupportsRaft)
	} else {
		feat = features.NewService()
	}

	endpoints := make([]gossip.Endpoint, 0, len(cfg.ContactNodes))
	for _, addr := range cfg.ContactNodes {
		endpoints = append(endpoints, gossip.Endpoint{Address: addr})
	}

	factory := rpc.NewNNGSocketFactory()
	rpcServer := rpc.NewServer(factory, cfg.Address, logger)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("failed to start rpc server: %w", err)
	}
	defer rpcServer.Stop()

	orch, err := group0.NewOrchestrator(group0.Config{Address: cfg.Address}, group0.Dependencies{
		Store:     store,
		Registry:  registry,
		Features:  feat,
		Gossiper:  gossip.NewStaticGossiper(endpoints...),
		Migration: &migration.NopManager{},
		CDC:       &migration.NopCDCService{},
		Exchanger: rpc.NewClient(factory),
		RPC:       rpcServer,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to construct orchestrator: %w", err)
	}
	defer orch.Abort()

	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
		cancel()
		orch.Abort()
	}()

	if err := orch.SetupGroup0(ctx, cfg.ContactNodes, nil); err != nil {
		return fmt.Errorf("group 0 setup failed: %w", err)
	}
	if err := orch.FinishSetupAfterJoin(ctx); err != nil {
		return fmt.Errorf("finish setup failed: %w", err)
	}

	if ok, err := orch.WaitForRaft(ctx); err != nil {
		return fmt.Errorf("wait for raft failed: %w", err)
	} else if ok {
		logger.Info("group 0 ready")
	} else {
		logger.Info("group 0 not available yet (disabled or pending upgrade)")
	}

	// Refresh process-level gauges until shutdown
	startTime := time.Now()
	reg := metrics.DefaultRegistry()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("metaraft node stopped")
			return nil
		case <-ticker.C:
			reg.UpdateSystemMetrics(startTime)
		}
	}
}

func serveMetrics(port int, logger logging.Logger) {
	handler := promhttp.HandlerFor(
		metrics.DefaultRegistry().GetPrometheusRegistry(),
		promhttp.HandlerOpts{},
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics endpoint listening", logging.Address(addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", logging.Error(err))
	}
}
