package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdviewer/internal/api"
	"mdviewer/internal/capability"
	"mdviewer/internal/clock"
	"mdviewer/internal/config"
	"mdviewer/internal/dom"
	"mdviewer/internal/events"
	"mdviewer/internal/extension"
	"mdviewer/internal/manager"
	"mdviewer/internal/state"
	"mdviewer/internal/storage"

	// Built-in plugins register themselves from init().
	_ "mdviewer/internal/plugins/emoji"
	_ "mdviewer/internal/plugins/mermaid"
	_ "mdviewer/internal/plugins/wordcount"

	"go.uber.org/zap"
)

func main() {
	// Initialize logger. The level is adjusted once the config is loaded.
	logConfig := zap.NewProductionConfig()
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if level, err := cfg.Level(); err == nil {
		logConfig.Level.SetLevel(level)
	}

	logger.Info("Starting mdviewer plugin host",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("path", cfg.Storage.Path))

	ctx := context.Background()

	backend, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	store := state.NewStore(backend, logger, cfg.PersistedKeys)
	store.Init(ctx)
	computed := store.SetupComputedState()
	defer func() {
		for _, sub := range computed {
			sub.Unsubscribe()
		}
	}()

	bus := events.NewBus(logger)
	registry := extension.NewRegistry(logger)
	document := dom.NewDocument(logger)
	factory := capability.NewFactory(bus, store, registry, document, clock.NewReal(), logger)
	plugins := manager.NewManager(factory, bus, store, nil, logger)

	bus.Subscribe(events.NotificationShow, func(payload any) {
		logger.Info("Notification", zap.Any("notification", payload))
	})
	bus.Subscribe(events.PluginError, func(payload any) {
		if e, ok := payload.(manager.ErrorEvent); ok {
			logger.Warn("Plugin error reported",
				zap.String("plugin", e.PluginID),
				zap.String("op", e.Op),
				zap.String("error", e.Message))
		}
	})

	if err := plugins.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize plugins", zap.Error(err))
	}
	for _, info := range plugins.GetPluginList() {
		logger.Info("Plugin",
			zap.String("id", info.ID),
			zap.String("version", info.Version),
			zap.Bool("enabled", info.Enabled))
	}

	server := api.NewServer(plugins, registry, store, bus, cfg.StreamNamespaces, logger, cfg.API.Port)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutting down gracefully...")

	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	plugins.Shutdown(shutdownCtx)
}
