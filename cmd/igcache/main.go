package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/git-pkgs/igcache"
	"github.com/git-pkgs/igcache/config"
	"github.com/git-pkgs/igcache/fetch"
	"github.com/git-pkgs/igcache/internal/logging"
	"github.com/git-pkgs/igcache/internal/server"
	"github.com/git-pkgs/igcache/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer closeStore()

	f := fetch.NewFetcher(cfg.FetchOptions()...)
	defer f.Close()

	svc := igcache.New(st, fetch.NewCircuitBreakerFetcher(f, cfg.HTTP.BreakerThreshold), cfg.Registries,
		igcache.WithLogger(logger),
		igcache.WithParseWorkers(cfg.ParseWorkers),
	)
	logger.Info("IG cache ready",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("registries", svc.Registries()))

	srv := server.New(svc, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; cached packages are lost on exit")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.Database.DSN, cfg.Database.MaxConns, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.CreateSchema {
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		logger.Info("Database schema ensured")
	}
	return pg, pg.Close, nil
}
