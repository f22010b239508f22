package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/driftwatch/internal/alert"
	"github.com/HerbHall/driftwatch/internal/config"
	"github.com/HerbHall/driftwatch/internal/event"
	"github.com/HerbHall/driftwatch/internal/pipeline"
	"github.com/HerbHall/driftwatch/internal/registry"
	"github.com/HerbHall/driftwatch/internal/server"
	"github.com/HerbHall/driftwatch/internal/source"
	"github.com/HerbHall/driftwatch/internal/store"
	"github.com/HerbHall/driftwatch/internal/version"
	"github.com/HerbHall/driftwatch/internal/ws"
	"github.com/HerbHall/driftwatch/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Short())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Driftwatch starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "driftwatch.db"
	}
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(context.Background(), version.Version); err != nil {
		logger.Fatal("schema version check failed", zap.Error(err))
	}

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Create shared services
	bus := event.NewBus(logger.Named("event"))

	// Create plugin registry
	reg := registry.New(logger.Named("registry"))

	// Register all plugins (compile-time composition)
	modules := []plugin.Plugin{
		source.New(),
		pipeline.New(),
		alert.New(),
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	// Validate dependency graph and API versions
	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	// Initialize all plugins with dependencies
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		pluginCfg := cfg.Sub("plugins." + name)
		return plugin.Dependencies{
			Config:  pluginCfg,
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	// Wire the sample feed: pipeline consumes the source module's channel.
	// Done in the composition root to avoid coupling pipeline -> source.
	var srcMod *source.Module
	var pipeMod *pipeline.Module
	for _, m := range modules {
		switch mod := m.(type) {
		case *source.Module:
			srcMod = mod
		case *pipeline.Module:
			pipeMod = mod
		}
	}
	if srcMod == nil || pipeMod == nil {
		logger.Fatal("source and pipeline plugins are required")
	}
	pipeMod.SetSource(srcMod)

	// Start plugins
	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Create WebSocket handler for real-time stream updates
	wsHandler := ws.NewHandler(bus, logger.Named("ws"))

	// Create and start HTTP server
	var srvCfg server.Config
	if err := viperCfg.UnmarshalKey("server", &srvCfg); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}
	addr := srvCfg.Addr()
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		if err := db.DB().PingContext(ctx); err != nil {
			return err
		}
		return srcMod.Err()
	})
	srv := server.New(addr, reg, logger, readyCheck, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("Driftwatch ready", zap.String("addr", addr))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown: stop accepting traffic, then drain the pipeline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	reg.StopAll(shutdownCtx)

	if err := srcMod.Err(); err != nil {
		logger.Error("stream source failed", zap.Error(err))
		logger.Info("Driftwatch stopped")
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("Driftwatch stopped")
}
