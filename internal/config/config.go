// Package config loads service configuration with viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App            AppConfig
	HTTP           HTTPConfig
	Database       DatabaseConfig
	Log            LogConfig
	Ledger         LedgerConfig
	Reconciliation ReconciliationConfig
	Worker         WorkerConfig

	location *time.Location
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name string
	Env  string
	// Timezone decides where calendar days start for date queries.
	Timezone string
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	Storage          string // postgres or memory
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	MigrateOnStart   bool
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string
	Development bool
}

// LedgerConfig holds append-path settings.
type LedgerConfig struct {
	// StrictStock rejects exits that would drive a balance negative.
	StrictStock bool
	// MaxApplyRetries bounds optimistic-lock retries on a balance row.
	MaxApplyRetries int
}

// ReconciliationConfig holds report settings.
type ReconciliationConfig struct {
	// BatchSize is how many products are tallied per round trip.
	BatchSize int
}

// WorkerConfig holds settings of the projection verifier.
type WorkerConfig struct {
	VerifyInterval time.Duration
	// Repair rebuilds balances that drifted from the ledger.
	Repair bool
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with STOCKLEDGER_ prefix (e.g. STOCKLEDGER_DATABASE_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/stockledger")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STOCKLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Timezone: v.GetString("app.timezone"),
		},
		HTTP: HTTPConfig{
			Port:            v.GetString("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Storage:          v.GetString("database.storage"),
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
			MigrateOnStart:   v.GetBool("database.migrate_on_start"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Ledger: LedgerConfig{
			StrictStock:     v.GetBool("ledger.strict_stock"),
			MaxApplyRetries: v.GetInt("ledger.max_apply_retries"),
		},
		Reconciliation: ReconciliationConfig{
			BatchSize: v.GetInt("reconciliation.batch_size"),
		},
		Worker: WorkerConfig{
			VerifyInterval: v.GetDuration("worker.verify_interval"),
			Repair:         v.GetBool("worker.repair"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stockledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = "UTC"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.Storage == "" {
		cfg.Database.Storage = StoragePostgres
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = 2 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Ledger.MaxApplyRetries == 0 {
		cfg.Ledger.MaxApplyRetries = 3
	}
	if cfg.Reconciliation.BatchSize == 0 {
		cfg.Reconciliation.BatchSize = 500
	}
	if cfg.Worker.VerifyInterval == 0 {
		cfg.Worker.VerifyInterval = time.Hour
	}
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	c.location = loc

	switch c.Database.Storage {
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown database.storage %q", c.Database.Storage)
	}

	if c.Ledger.MaxApplyRetries < 1 {
		return fmt.Errorf("ledger.max_apply_retries must be positive")
	}
	if c.Reconciliation.BatchSize < 1 {
		return fmt.Errorf("reconciliation.batch_size must be positive")
	}
	return nil
}

// Location returns the time zone calendar dates are interpreted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
