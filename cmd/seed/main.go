// Package main provides a CLI tool that loads catalog, cut-over and fiscal
// data from CSV files with the COPY protocol.
//
// Usage: seed <dir>
//
// Every file is optional; see tables for the expected names and columns.
// All files load in one transaction.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: seed <dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.Database.Storage != config.StoragePostgres {
		log.Fatalw("seeding needs postgres storage", "storage", cfg.Database.Storage)
	}

	ctx := context.Background()

	if err := postgres.Migrate(ctx, cfg.Database.URL); err != nil {
		log.Fatalw("failed to migrate database", "error", err)
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool, 0)
	inserter := postgres.NewBatchInserter(txm)

	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, t := range tables {
			n, err := loadTable(ctx, inserter, dir, t)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Infow("table loaded", "table", t.name, "rows", n)
			}
		}
		return nil
	})
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			log.Fatalw("seed data collides with existing rows", "error", err)
		}
		log.Fatalw("seeding failed", "error", err)
	}

	log.Info("seeding completed successfully")
}

// loadTable streams one CSV file into its table. A missing file loads nothing.
func loadTable(ctx context.Context, inserter *postgres.BatchInserter, dir string, t table) (int64, error) {
	f, err := os.Open(filepath.Join(dir, t.file))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows := make(chan []any, 256)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		return streamTable(f, t, rows)
	})

	var copied int64
	g.Go(func() error {
		n, err := inserter.CopyFromRows(gctx, t.name, t.columnNames(), rows)
		copied = n
		if err != nil {
			// unblock the parser
			for range rows {
			}
			return fmt.Errorf("copy into %s: %w", t.name, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return copied, nil
}
