package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ragly/xpanel/internal/config"
	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/core/engine"
	"github.com/ragly/xpanel/internal/metrics"
	"github.com/ragly/xpanel/internal/output"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the tweet approval queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tweets, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		filter := core.QueueStatus(strings.ToLower(strings.TrimSpace(status)))
		switch filter {
		case "", core.QueueStatusPending, core.QueueStatusApproved, core.QueueStatusRejected:
		default:
			return fmt.Errorf("--status must be pending, approved or rejected")
		}

		return withQueue(cmd, false, func(q *engine.ApprovalQueue) error {
			tweets, err := q.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return emit(cmd, "queue", func(f output.Formatter) (string, error) {
				return f.FormatQueue(tweets)
			})
		})
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Queue a tweet for approval",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd, false, func(q *engine.ApprovalQueue) error {
			tweet, err := q.Enqueue(cmd.Context(), strings.Join(args, " "))
			metrics.RecordQueueOperation("enqueue", err == nil)
			if err != nil {
				return err
			}
			return emit(cmd, "queue-add", func(f output.Formatter) (string, error) {
				return f.FormatQueue([]core.QueuedTweet{*tweet})
			})
		})
	},
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Post a queued tweet and mark it approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideQueued(cmd, args[0], core.QueueActionApprove)
	},
}

var queueRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Mark a queued tweet rejected without posting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideQueued(cmd, args[0], core.QueueActionReject)
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a tweet from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd, false, func(q *engine.ApprovalQueue) error {
			err := q.Delete(cmd.Context(), args[0])
			metrics.RecordQueueOperation("delete", err == nil)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", strings.TrimSpace(args[0]))
			return err
		})
	},
}

func decideQueued(cmd *cobra.Command, id string, action core.QueueAction) error {
	return withQueue(cmd, action == core.QueueActionApprove, func(q *engine.ApprovalQueue) error {
		if by, _ := cmd.Flags().GetString("as"); strings.TrimSpace(by) != "" {
			q.Approver = by
		}

		decision, err := q.Decide(cmd.Context(), id, action)
		metrics.RecordQueueOperation(string(action), err == nil)
		if err != nil {
			return err
		}

		lines := []string{
			fmt.Sprintf("Tweet %s %s by %s", decision.Tweet.ID, decision.Tweet.Status, decision.Tweet.DecidedBy),
		}
		if decision.Posted {
			lines = append(lines, "Posted as "+decision.Tweet.PostedTweetID)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	})
}

// withQueue runs fn against the approval queue. Only approval posts, so
// the other actions work without X credentials.
func withQueue(cmd *cobra.Command, needsPoster bool, fn func(q *engine.ApprovalQueue) error) error {
	if needsPoster {
		session, err := openXSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		q, err := session.queue()
		if err != nil {
			return err
		}
		return fn(q)
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStoreWith(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	return fn(&engine.ApprovalQueue{Store: db, Approver: cfg.Queue.Approver})
}

func init() {
	queueListCmd.Flags().String("status", "", "filter by status: pending|approved|rejected")
	addOutputFlags(queueListCmd)
	addOutputFlags(queueAddCmd)

	for _, c := range []*cobra.Command{queueApproveCmd, queueRejectCmd} {
		c.Flags().String("as", "", "operator name recorded on the decision (default queue.approver)")
	}

	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueApproveCmd, queueRejectCmd, queueDeleteCmd)
	rootCmd.AddCommand(queueCmd)
}
