package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/database/mariadb"
	"github.com/kozaktomas/photo-dedup/internal/database/postgres"
	"github.com/kozaktomas/photo-dedup/internal/database/sqlite"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openCache connects to the configured cache backend and applies migrations.
func openCache(ctx context.Context, cfg *config.Config) (database.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite cache: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return store, nil
	case config.BackendMariaDB:
		store, err := mariadb.Open(ctx, &cfg.MariaDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", config.ErrConfiguration, cfg.Cache.Backend)
	}
}

// cacheLocation describes where the cache lives, with credentials hidden.
func cacheLocation(cfg *config.Config) string {
	switch cfg.Cache.Backend {
	case config.BackendPostgres:
		return config.RedactDSN(cfg.Database.URL)
	case config.BackendMariaDB:
		return config.RedactDSN(cfg.MariaDB.DSN)
	default:
		return cfg.Cache.Path
	}
}
