package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core/engine"
	"github.com/ragly/xpanel/internal/core/store"
	errwrap "github.com/ragly/xpanel/internal/errors"
	"github.com/ragly/xpanel/internal/metrics"
	"github.com/ragly/xpanel/internal/observability"
	"github.com/ragly/xpanel/internal/server"
	"github.com/ragly/xpanel/internal/server/handlers"
	"github.com/ragly/xpanel/internal/xapi"
)

const defaultShutdownTimeout = 10 * time.Second

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

The X API routes are mounted under /api/x and share one client, so the
response cache, rate-limit tracker and request throttle apply across all
callers. Tracked budgets are persisted to the store.

Signals:
  SIGINT, SIGTERM   graceful shutdown (press Ctrl+C twice within 2s to force quit)
  SIGHUP            re-read and validate the config file; credentials and
                    client tuning still need a restart`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identity := GetAppIdentity()

	cfg, err := config.Load(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "failed to load configuration")
	}
	if err := initServerObservability(identity, cfg); err != nil {
		return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
	}
	logger := observability.ServerLogger

	db, err := openStoreWith(ctx, cfg)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "failed to open store")
	}

	client, err := newXClient(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		if isConfigError(err) {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "X API credentials are not configured", err)
		}
		return errwrap.WrapInternal(ctx, err, "failed to build X API client")
	}

	queue := &engine.ApprovalQueue{Store: db, Poster: client, Approver: cfg.Queue.Approver}
	if pending, err := queue.Pending(ctx); err == nil {
		metrics.SetQueuePending(pending)
	}

	registerHealthChecks(identity, cfg, db)
	handlers.SetAppIdentity(identity)
	handlers.SetUpstream(client)

	srv := server.New(cfg.Server, &handlers.XHandler{Client: client, Queue: queue})
	registerShutdownHooks(srv, db, client, cfg.Server.ShutdownTimeout)
	signals.OnReload(reloadConfig)
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	if err := listenAndWait(ctx, srv, cfg.Server); err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

func initServerObservability(identity *appidentity.Identity, cfg *config.Config) error {
	namespace := identity.TelemetryNamespace()
	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)

	port := cfg.Metrics.Port
	if port == 0 {
		port = observability.DefaultMetricsPort
	}
	if err := observability.InitMetrics(observability.MetricsOptions{
		Service:   identity.BinaryName,
		Namespace: namespace,
		Port:      port,
		Enabled:   cfg.Metrics.Enabled,
	}); err != nil {
		observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
		return err
	}

	observability.ServerLogger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()),
		zap.Bool("x_credentials_configured", cfg.X.Credentials().Validate() == nil))
	return nil
}

func registerHealthChecks(identity *appidentity.Identity, cfg *config.Config, db *store.Store) {
	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("store", handlers.StoreChecker(db))
	hm.RegisterChecker("x_credentials", handlers.CredentialsChecker(cfg.X.Credentials()))
	hm.RegisterChecker("telemetry", handlers.TelemetryChecker(), handlers.Optional())
	hm.RegisterChecker("app_identity", handlers.IdentityChecker(identity),
		handlers.ForProbes(handlers.ProbeStartup, handlers.ProbeAggregate))
}

// registerShutdownHooks registers teardown in reverse execution order:
// the HTTP server stops first, then the client and store close, then
// telemetry and logs are flushed.
func registerShutdownHooks(srv *server.Server, db *store.Store, client *xapi.Client, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	logger := observability.ServerLogger

	signals.OnShutdown(func(ctx context.Context) error {
		if err := observability.StopMetrics(); err != nil {
			logger.Warn("Metrics exporter stop returned error", zap.Error(err))
		}
		// Sync on a closed stderr fails harmlessly.
		_ = logger.Sync()
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := client.Close(); err != nil {
			logger.Warn("Trace file close returned error", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			logger.Warn("Store close returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped")
		return nil
	})
}

// reloadConfig re-reads the config file on SIGHUP and reports whether the
// result would load. Running components keep their startup settings.
func reloadConfig(ctx context.Context) error {
	logger := observability.ServerLogger
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file to reload")
			return nil
		}
		logger.Error("Failed to reload config file", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}
	if _, err := config.Load(ctx); err != nil {
		logger.Error("Reloaded config is invalid", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}
	logger.Info("Config file re-read; restart to apply X client or server changes",
		zap.String("file", viper.ConfigFileUsed()))
	return nil
}

// listenAndWait serves until the signal listener completes a shutdown or
// either goroutine fails.
func listenAndWait(ctx context.Context, srv *server.Server, cfg config.ServerConfig) error {
	logger := observability.ServerLogger
	errCh := make(chan error, 2)

	metrics.SetServerStartTime(time.Now().Unix())
	go func() {
		logger.Info("Starting HTTP server", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errCh <- err
		}
	}()

	return <-errCh
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
