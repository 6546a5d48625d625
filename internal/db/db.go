// internal/db/db.go
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/unclebandit/retention-backend/internal/config"
)

// Open connects to the configured store and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// A single connection keeps in-memory databases shared across queries.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Msg("connected to database")
	return db, nil
}

// Migrate applies the schema for the connection's driver. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if db.DriverName() == "postgres" {
		if _, err := db.ExecContext(ctx, postgresTriggers); err != nil {
			return fmt.Errorf("apply notify triggers: %w", err)
		}
	}
	return nil
}
