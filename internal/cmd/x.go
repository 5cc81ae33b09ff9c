package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragly/xpanel/internal/output"
	"github.com/ragly/xpanel/internal/xapi"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated X account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openXSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		var opts []xapi.FetchOption
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			opts = append(opts, xapi.WithSkipCache())
		}

		user, err := session.client.Me(cmd.Context(), opts...)
		if err != nil {
			return err
		}
		return emit(cmd, "whoami", func(f output.Formatter) (string, error) {
			return f.FormatUser(user)
		})
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List your most recent tweets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTweetListing(cmd, "timeline", (*xapi.Client).Timeline)
	},
}

var mentionsCmd = &cobra.Command{
	Use:   "mentions",
	Short: "List recent tweets mentioning you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTweetListing(cmd, "mentions", (*xapi.Client).MentionsTimeline)
	},
}

var tweetCmd = &cobra.Command{
	Use:   "tweet <text>",
	Short: "Post a tweet immediately, bypassing the approval queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openXSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close()

		replyTo, _ := cmd.Flags().GetString("reply-to")
		posted, err := session.client.PostTweet(cmd.Context(), strings.Join(args, " "), replyTo)
		if err != nil {
			return err
		}
		return emit(cmd, "tweet", func(f output.Formatter) (string, error) {
			return f.FormatPosted(posted)
		})
	},
}

type tweetLister func(c *xapi.Client, ctx context.Context, opts xapi.PageOptions) (*xapi.TweetPage, error)

func runTweetListing(cmd *cobra.Command, name string, list tweetLister) error {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	token, _ := cmd.Flags().GetString("pagination-token")
	refresh, _ := cmd.Flags().GetBool("refresh")

	session, err := openXSession(cmd.Context())
	if err != nil {
		return err
	}
	defer session.Close()

	page, err := list(session.client, cmd.Context(), xapi.PageOptions{
		MaxResults:      maxResults,
		PaginationToken: strings.TrimSpace(token),
		Refresh:         refresh,
	})
	if err != nil {
		return err
	}
	return emit(cmd, name, func(f output.Formatter) (string, error) {
		return f.FormatTweets(page)
	})
}

func init() {
	whoamiCmd.Flags().Bool("refresh", false, "bypass the response cache")
	addOutputFlags(whoamiCmd)

	for _, c := range []*cobra.Command{timelineCmd, mentionsCmd} {
		c.Flags().Int("max-results", xapi.DefaultMaxResults, "page size (clamped to 5-100)")
		c.Flags().String("pagination-token", "", "continue from a previous page's next token")
		c.Flags().Bool("refresh", false, "bypass the response cache")
		addOutputFlags(c)
	}

	tweetCmd.Flags().String("reply-to", "", "tweet id to reply to")
	addOutputFlags(tweetCmd)

	rootCmd.AddCommand(whoamiCmd, timelineCmd, mentionsCmd, tweetCmd)
}
