package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ragly/xpanel/internal/core/store"
	"github.com/ragly/xpanel/internal/output"
)

var rateLimitListPrefix string

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted X endpoint budgets",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{All: true}
		if prefix := strings.TrimSpace(rateLimitListPrefix); prefix != "" {
			query = store.RateLimitQuery{Prefix: prefix}
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		return emitFormat(cmd, "rate-limit.list", func(format output.Format) (string, error) {
			if format == output.FormatJSON {
				payload, err := json.MarshalIndent(map[string]any{"rate_limits": entries}, "", "  ")
				return string(payload), err
			}
			return renderRateLimitEntries(entries, time.Now().UTC()), nil
		})
	},
}

func renderRateLimitEntries(entries []store.RateLimitEntry, now time.Time) string {
	lines := []string{"Rate Limits", ""}
	if len(entries) == 0 {
		lines = append(lines, "(no stored rate limit state)")
		return ascii.DrawBox(strings.Join(lines, "\n"), 0)
	}

	for _, entry := range entries {
		state := "expired"
		if entry.Info.ResetAt.After(now) {
			state = "resets in " + entry.Info.ResetAt.Sub(now).Round(time.Second).String()
		}
		lines = append(lines, fmt.Sprintf("%s: remaining=%d/%d reset_at=%s (%s)",
			entry.Endpoint, entry.Info.Remaining, entry.Info.Limit,
			entry.Info.ResetAt.UTC().Format(time.RFC3339), state))
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

func init() {
	addOutputFlags(rateLimitListCmd)
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List endpoints with matching prefix (default all)")
}
