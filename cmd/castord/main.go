package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/castordb/castor/internal/config"
	"github.com/castordb/castor/internal/engine"
	"github.com/castordb/castor/internal/logging"
	"github.com/castordb/castor/internal/metrics"
	"github.com/castordb/castor/internal/querycache"
	"github.com/castordb/castor/internal/server"
	"github.com/castordb/castor/internal/util/workerpool"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled))

	var registry *prometheus.Registry
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		m = metrics.NewMetrics(registry)
	}

	var cache *querycache.QueryCache
	if cfg.Cache.Enabled {
		cache = querycache.New(querycache.Config{
			MaxTotalBytes:   cfg.Cache.MaxTotalBytes,
			MaxEntryBytes:   cfg.Cache.MaxEntryBytes,
			EntryPutTimeout: cfg.Cache.EntryPutTimeout,
		}, logger, m)
		defer cache.Close()
	}

	eng := engine.New(engine.Config{
		BatchSize:    cfg.Engine.BatchSize,
		MinQueryRuns: cfg.Cache.MinQueryRuns,
	}, cache, logger, m)

	for _, tc := range cfg.Engine.Tables {
		t, err := engine.NewTableFromConfig(tc)
		if err != nil {
			logger.Fatal("failed to build table", zap.String("table", tc.Name), zap.Error(err))
		}
		eng.RegisterTable(t)
		logger.Info("table registered",
			zap.String("table", t.Name),
			zap.Int("rows", t.Rows()))
	}

	pool := workerpool.New(cfg.Server.MaxConcurrentQueries, cfg.Server.QueryQueueSize, logger)
	defer pool.Stop()

	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}
	srv := server.New(cfg.Server, cfg.Metrics, eng, pool, gatherer, logger)
	srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	if err := srv.Stop(); err != nil {
		logger.Error("failed to stop http server", zap.Error(err))
	}
}
