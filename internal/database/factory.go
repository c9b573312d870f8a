package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cms-go/internal/config"
)

// NewDatabaseFromConfig opens the Metadata Index described by cfg and applies
// pending migrations.
func NewDatabaseFromConfig(ctx context.Context, cfg config.DatabaseConfig) (*SQLDatabase, error) {
	var (
		db  *SQLDatabase
		err error
	)
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		db, err = NewSQLiteDatabase(filepath.Join(cfg.DataDir, "cms.db"))
	case "memory":
		db, err = NewSQLiteDatabase(":memory:")
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		db, err = NewPostgresDatabase(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}
