package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daaku/ghwebhook/internal/config"
	"github.com/daaku/ghwebhook/internal/delivery"
	"github.com/daaku/ghwebhook/internal/lock"
	"github.com/daaku/ghwebhook/internal/log"
	"github.com/daaku/ghwebhook/internal/storage"
	"github.com/daaku/ghwebhook/internal/webhook"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	fingerprint, err := config.Fingerprint(*configPath)
	if err != nil {
		logger.Error("failed to fingerprint config", "config", *configPath, "error", err)
		return 1
	}
	logger.Info("ghwebhook starting", "version", version, "config", *configPath, "fingerprint", fingerprint)

	whConfig, err := webhook.FromGlobalConfig(cfg.Webhooks, cfg.Secrets)
	if err != nil {
		logger.Error("invalid webhook configuration", "error", err)
		return 1
	}

	lockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()

	store := delivery.New(db)
	if cfg.State.Retention > 0 {
		pruned, err := store.Prune(ctx, time.Now().Add(-cfg.State.Retention))
		if err != nil {
			logger.Error("failed to prune delivery log", "error", err)
			return 1
		}
		logger.Info("pruned delivery log", "removed", pruned, "retention", cfg.State.Retention.String())
	}

	server, err := webhook.New(whConfig, store, log.WithComponent("webhook"))
	if err != nil {
		logger.Error("failed to build webhook server", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("webhook server stopped", "error", err)
		return 1
	}

	logger.Info("ghwebhook stopped")
	return 0
}
