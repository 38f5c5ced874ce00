// Package main is the entry point for the tabula background worker:
// it drains the recalculation trigger queue and sweeps stale locks
// and ignore markers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabula/internal/config"
	"tabula/internal/metadata"
	"tabula/internal/object"
	"tabula/internal/register"
	"tabula/internal/storage/postgres"
	"tabula/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting tabula worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	registry := metadata.DefaultRegistry()
	gateway := postgres.NewGateway(pool)

	recalc := register.NewRecalculator(gateway, registry, cfg.Worker.RecalcBatch)
	locks := object.NewLockManager(gateway)

	go sweepLoop(ctx, gateway, locks, cfg.Worker)

	if err := recalc.Run(ctx, cfg.Worker.RecalcInterval); err != nil && ctx.Err() == nil {
		log.Fatalw("recalculation loop failed", "error", err)
	}
	log.Info("worker stopped")
}

// sweepLoop periodically drops stale locks and ignore markers left by
// crashed sessions.
func sweepLoop(ctx context.Context, gateway *postgres.Gateway, locks *object.LockManager, cfg config.WorkerConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := locks.Sweep(ctx, cfg.LockTTL); err != nil {
				logger.Error(ctx, "lock sweep failed", "error", err)
			}
			cutoff := time.Now().UTC().Add(-cfg.IgnoreTTL)
			if n, err := gateway.IgnoreSweep(ctx, cutoff); err != nil {
				logger.Error(ctx, "ignore sweep failed", "error", err)
			} else if n > 0 {
				logger.Info(ctx, "swept stale ignore markers", "count", n)
			}
		}
	}
}
