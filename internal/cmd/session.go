package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core/engine"
	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/observability"
	"github.com/ragly/xpanel/internal/xapi"
)

// xSession bundles what a CLI command needs to talk to X.
type xSession struct {
	cfg    *config.Config
	db     *store.Store
	client *xapi.Client
}

// openXSession loads config, opens the store and builds the client. A store
// that cannot be opened only costs budget persistence, so it is logged and
// skipped. Missing credentials exit with the config-invalid code.
func openXSession(ctx context.Context) (*xSession, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openStoreWith(ctx, cfg)
	if err != nil {
		observability.CLILogger.Warn("Store unavailable, rate limits will not persist", zap.Error(err))
		db = nil
	}

	client, err := newXClient(ctx, cfg, db, observability.CLILogger)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		if isConfigError(err) {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "X API credentials are not configured", err)
		}
		return nil, err
	}

	return &xSession{cfg: cfg, db: db, client: client}, nil
}

// queue returns an approval queue backed by the session store.
func (s *xSession) queue() (*engine.ApprovalQueue, error) {
	if s.db == nil {
		return nil, fmt.Errorf("approval queue requires a working store (%s)", s.cfg.Store.Path)
	}
	return &engine.ApprovalQueue{
		Store:    s.db,
		Poster:   s.client,
		Approver: s.cfg.Queue.Approver,
	}, nil
}

func (s *xSession) Close() {
	if s == nil {
		return
	}
	_ = s.client.Close()
	if s.db != nil {
		_ = s.db.Close()
	}
}
