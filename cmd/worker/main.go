// Package main is the entry point for the stockledger background worker.
// It periodically replays the ledger and checks the balance projection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

const sweepPageSize = 200

func main() {
	cfg, err := config.Load()
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
	logger.SetDefault(log)

	if cfg.Database.Storage != config.StoragePostgres {
		log.Fatalw("the worker needs postgres storage", "storage", cfg.Database.Storage)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting stockledger worker",
		"verify_interval", cfg.Worker.VerifyInterval,
		"repair", cfg.Worker.Repair,
	)

	svc, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize services", "error", err)
	}
	defer svc.Close()

	worker := NewVerifier(svc.Balances, svc.Pool, cfg.Worker, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Verifier sweeps the balance projection on a fixed interval.
type Verifier struct {
	balances *balance.Store
	pool     *postgres.Pool
	cfg      config.WorkerConfig
	log      *logger.Logger
}

func NewVerifier(balances *balance.Store, pool *postgres.Pool, cfg config.WorkerConfig, log *logger.Logger) *Verifier {
	return &Verifier{
		balances: balances,
		pool:     pool,
		cfg:      cfg,
		log:      log.WithComponent("verifier"),
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (v *Verifier) Run(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.VerifyInterval)
	defer ticker.Stop()

	v.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.sweep(ctx)
		}
	}
}

func (v *Verifier) sweep(ctx context.Context) {
	start := time.Now()
	res, err := v.balances.Sweep(ctx, v.cfg.Repair, sweepPageSize)
	if err != nil {
		if ctx.Err() == nil {
			v.log.Errorw("balance sweep failed", "error", err)
		}
		return
	}

	v.log.Infow("balance sweep finished",
		"products", res.Products,
		"drifted", res.Drifted,
		"repaired", res.Repaired,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if v.pool != nil {
		postgres.LogPoolStats(ctx, v.pool.Pool)
	}
}
