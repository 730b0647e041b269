// Package main provides a CLI for the embedded schema migrations.
// Usage: migrate up
//        migrate down
//        migrate version
package main

import (
	"context"
	"fmt"
	"os"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up", "down", "version":
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Storage != config.StoragePostgres {
		fmt.Println("Error: migrations need database.storage = postgres")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if err := run(context.Background(), os.Args[1], cfg.Database.URL); err != nil {
		log.Fatalw("migration command failed", "command", os.Args[1], "error", err)
	}
}

func run(ctx context.Context, command, databaseURL string) error {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	default:
		version, dirty, ok, err := m.Version()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	}
}

func printUsage() {
	fmt.Println(`stockledger schema migrations

Usage:
  migrate <command>

Commands:
  up        Apply all pending migrations
  down      Roll back every migration
  version   Print the applied schema version
  help      Show this help

Environment Variables:
  STOCKLEDGER_DATABASE_URL   PostgreSQL connection string (required)`)
}
