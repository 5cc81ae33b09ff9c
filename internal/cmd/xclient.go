package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core/engine"
	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/metrics"
	"github.com/ragly/xpanel/internal/xapi"
)

const persistTimeout = 2 * time.Second

// newXClient builds the shared client. When db is non-nil, tracked budgets
// are restored from it and every observed call writes its budget back.
// Callers close the client to release the trace file.
func newXClient(ctx context.Context, cfg *config.Config, db *store.Store, logger *logging.Logger) (*xapi.Client, error) {
	opts := cfg.X.ClientOptions()
	if cfg.Debug.TraceFile != "" {
		tracer, err := xapi.OpenTracer(cfg.Debug.TraceFile)
		if err != nil {
			if logger != nil {
				logger.Warn("Failed to enable tracing", zap.Error(err))
			}
		} else {
			opts.Tracer = tracer
		}
	}

	client, err := xapi.NewClient(cfg.X.Credentials(), opts)
	if err != nil {
		_ = opts.Tracer.Close()
		return nil, err
	}

	observe := metrics.XAPIObserver(logger)
	if db == nil {
		client.SetObserver(observe)
		return client, nil
	}

	budgets := &engine.RateLimitSync{Store: db, Tracker: client.Tracker}
	restored, err := budgets.Restore(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("Failed to restore rate limits", zap.Error(err))
		}
	} else if restored > 0 && logger != nil {
		logger.Debug("Restored rate limits", zap.Int("endpoints", restored))
	}

	client.SetObserver(func(o xapi.Outcome) {
		observe(o)
		if !tracksBudget(o) {
			return
		}
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := budgets.Persist(persistCtx, o.Endpoint); err != nil && logger != nil {
			logger.Warn("Failed to persist rate limit", zap.String("endpoint", o.Endpoint), zap.Error(err))
		}
	})
	return client, nil
}

// tracksBudget reports whether an outcome may have changed the tracked
// budget for its endpoint.
func tracksBudget(o xapi.Outcome) bool {
	switch o.Result {
	case xapi.ResultCacheHit, xapi.ResultRateLimitedLocal, xapi.ResultInvalidRequest, xapi.ResultCanceled:
		return false
	}
	return o.Endpoint != ""
}

func isConfigError(err error) bool {
	var cfgErr *xapi.ConfigError
	return errors.As(err, &cfgErr)
}
