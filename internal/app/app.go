// Package app wires storage and domain services from configuration.
package app

import (
	"context"
	"fmt"

	"stockledger/internal/config"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/reconstruct"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/pkg/logger"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is the assembled application.
type Services struct {
	Ledger         *ledger.Service
	Balances       *balance.Store
	Reconstruct    *reconstruct.Service
	Reconciliation *reconciliation.Service

	// DB backs health checks: the pool for postgres, the store itself in memory.
	DB Pinger
	// Pool is nil for the memory backend.
	Pool *postgres.Pool
	// Memory is nil for the postgres backend.
	Memory *memory.Store
}

// repositories is what a storage backend provides.
type repositories struct {
	txm       tx.ReadOnlyManager
	movements interface {
		ledger.Repository
		balance.MovementSource
		reconstruct.MovementReader
		reconciliation.MovementReader
	}
	balances interface {
		balance.Repository
		reconstruct.BalanceReader
	}
	catalog interface {
		catalog.Repository
		reconciliation.CatalogReader
	}
	fiscal reconciliation.FiscalReader
}

// Build connects storage and assembles the services.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	var (
		svc  = &Services{}
		repo repositories
	)

	switch cfg.Database.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		svc.Memory = store
		svc.DB = store
		repo = repositories{
			txm:       store,
			movements: store.Movements(),
			balances:  store.Balances(),
			catalog:   store.Catalog(),
			fiscal:    store.Fiscal(),
		}
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")

	case config.StoragePostgres:
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}

		poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
		poolCfg.ApplicationName = cfg.App.Name
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		svc.Pool = pool
		svc.DB = pool

		txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
		repo = repositories{
			txm:       txm,
			movements: register_repo.NewMovementRepo(txm),
			balances:  register_repo.NewBalanceRepo(txm),
			catalog:   catalog_repo.NewCatalogRepo(txm),
			fiscal:    document_repo.NewFiscalRepo(txm),
		}
		postgres.LogPoolStats(ctx, pool.Pool)

	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Database.Storage)
	}

	loc := cfg.Location()
	svc.Balances = balance.NewStore(repo.balances, repo.movements, repo.txm, balance.Options{
		Strict: cfg.Ledger.StrictStock,
	})
	svc.Ledger = ledger.NewService(repo.movements, repo.catalog, svc.Balances, repo.txm, cfg.Ledger.MaxApplyRetries)
	svc.Reconstruct = reconstruct.NewService(repo.movements, repo.balances, repo.catalog, repo.txm, reconstruct.Options{
		Location: loc,
	})
	svc.Reconciliation = reconciliation.NewService(repo.movements, repo.fiscal, repo.catalog, svc.Reconstruct, repo.txm,
		reconciliation.Options{
			Location:  loc,
			BatchSize: cfg.Reconciliation.BatchSize,
		})

	return svc, nil
}

// Close releases storage.
func (s *Services) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
