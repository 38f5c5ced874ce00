// Package main is the entry point for the tabula API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabula/internal/config"
	"tabula/internal/core/schema"
	"tabula/internal/httpapi"
	"tabula/internal/metadata"
	"tabula/internal/object"
	"tabula/internal/register"
	"tabula/internal/storage"
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

	ctx := context.Background()
	log.Info("starting tabula server")

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
	if err := gateway.EnsureSchema(ctx, registry); err != nil {
		log.Fatalw("failed to ensure schema", "error", err)
	}
	log.Info("metadata registry initialized",
		"entities", len(registry.List()), "registers", len(registry.Registers()))

	factory := object.NewFactory(gateway, registry)
	locks := object.NewLockManager(gateway)
	reposter := register.NewReposter(gateway, factory, goodsReceiptMovements(registry))

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Gateway:  gateway,
		Registry: registry,
		Factory:  factory,
		Locks:    locks,
		Reposter: reposter,
		Logger:   log,
		Engine:   cfg.Engine,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}

// goodsReceiptMovements derives stock movements from a goods receipt's
// line items: every line becomes one income movement at the document
// date.
func goodsReceiptMovements(registry *schema.Registry) register.MovementSource {
	return func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		if doc.Def().Name != "GoodsReceipt" {
			return nil, nil
		}
		stock, ok := registry.GetRegister("Stock")
		if !ok {
			return nil, fmt.Errorf("stock register is not declared")
		}
		part, err := doc.TablePart("goods")
		if err != nil {
			return nil, err
		}
		if err := part.Read(ctx, doc.ID()); err != nil {
			return nil, err
		}

		movements := make([]storage.Movement, 0, len(part.Rows()))
		for _, row := range part.Rows() {
			values := stock.NewRecord()
			values.MustSet("nomenclature", row.Values.GetID("nomenclature"))
			values.MustSet("quantity", row.Values.GetDecimal("quantity"))
			values.MustSet("amount", row.Values.GetDecimal("amount"))
			movements = append(movements, storage.Movement{
				Period: doc.SpendDate(),
				Income: true,
				Values: values,
			})
		}
		return map[string][]storage.Movement{"Stock": movements}, nil
	}
}
