package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/config"
	errwrap "github.com/ragly/xpanel/internal/errors"
	"github.com/ragly/xpanel/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify configuration, credentials and the store without calling the X API.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration loaded")

		if err := cfg.X.Credentials().Validate(); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "X API credentials incomplete", errwrap.FromDomainError(err))
			return
		}
		logger.Info("✅ X API credentials present")

		db, err := openStoreWith(cmd.Context(), cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Store unavailable", errwrap.WrapDatabaseError(cmd.Context(), err, "store unavailable"))
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.Ping(cmd.Context()); err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Store not responding", errwrap.WrapDatabaseError(cmd.Context(), err, "store ping failed"))
			return
		}
		logger.Info("✅ Store reachable", zap.String("driver", cfg.Store.Driver))

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
