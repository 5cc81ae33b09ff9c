package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/output"
)

var (
	rateLimitResetAll      bool
	rateLimitResetEndpoint string
	rateLimitResetPrefix   string
	rateLimitResetExpired  bool
	rateLimitResetYes      bool
	rateLimitResetDryRun   bool
)

type rateLimitResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
	Expired bool  `json:"expired_only,omitempty"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget persisted X endpoint budgets",
	Long: `Delete persisted rate limit state so the next call probes X again.

A running server keeps its in-memory budgets until it restarts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateLimitQuery{
			All:      rateLimitResetAll,
			Endpoint: strings.TrimSpace(rateLimitResetEndpoint),
			Prefix:   strings.TrimSpace(rateLimitResetPrefix),
		}
		if rateLimitResetExpired {
			query.ExpiredAt = time.Now().UTC()
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		result := rateLimitResetResult{DryRun: rateLimitResetDryRun, Expired: rateLimitResetExpired}
		if result.Matched, err = db.CountRateLimits(cmd.Context(), query); err != nil {
			return err
		}
		if !result.DryRun {
			if result.Deleted, err = db.ResetRateLimits(cmd.Context(), query); err != nil {
				return err
			}
		}

		return emitFormat(cmd, "rate-limit.reset", func(format output.Format) (string, error) {
			return renderRateLimitReset(format, result)
		})
	},
}

func renderRateLimitReset(format output.Format, result rateLimitResetResult) (string, error) {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		return string(payload), err
	}
	if result.DryRun {
		return fmt.Sprintf("Would delete %d rate limit entr(ies)", result.Matched), nil
	}
	return fmt.Sprintf("Deleted %d/%d rate limit entr(ies)", result.Deleted, result.Matched), nil
}

func init() {
	addOutputFlags(rateLimitResetCmd)
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all endpoints")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetEndpoint, "endpoint", "", "Reset a single endpoint key, e.g. /2/users/me")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset endpoints with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetExpired, "expired", false, "Only delete windows that have already reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
}
