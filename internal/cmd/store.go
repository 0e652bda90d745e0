package cmd

import (
	"context"

	"github.com/minisuite/minisuite/internal/config"
	"github.com/minisuite/minisuite/internal/core/store"
)

// openStore opens the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openStoreFromConfig loads configuration and opens the store.
func openStoreFromConfig(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
