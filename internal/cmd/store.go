package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/observability"
)

// openStore loads config and opens a migrated store. Callers close it.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStoreWith(ctx, cfg)
}

func openStoreWith(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	if logger := observability.Logger(); logger != nil {
		version, _ := db.SchemaVersion(ctx)
		logger.Debug("Store ready",
			zap.String("driver", db.Driver()),
			zap.Bool("local", db.Local()),
			zap.Int("schema_version", version))
	}
	return db, nil
}
