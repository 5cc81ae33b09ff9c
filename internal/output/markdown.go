package output

import (
	"fmt"
	"strings"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatUser renders the account as a heading.
func (f *MarkdownFormatter) FormatUser(user *xapi.User) (string, error) {
	if user == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s (@%s)\n\n", escapeMarkdownCell(user.Name), escapeMarkdownCell(user.Username)))
	sb.WriteString(fmt.Sprintf("- **ID**: %s\n", user.ID))
	if user.ProfileImageURL != "" {
		sb.WriteString(fmt.Sprintf("- **Avatar**: %s\n", user.ProfileImageURL))
	}
	return sb.String(), nil
}

// FormatTweets renders one page of tweets.
func (f *MarkdownFormatter) FormatTweets(page *xapi.TweetPage) (string, error) {
	if page == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("| ID | Author | Created | Text | Engagement |\n")
	sb.WriteString("|----|--------|---------|------|------------|\n")
	for _, tweet := range page.Data {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			tweet.ID,
			escapeMarkdownCell(authorLabel(page, tweet)),
			timestamp(tweet.CreatedAt),
			escapeMarkdownCell(oneLine(tweet.Text)),
			engagement(tweet.PublicMetrics),
		))
	}
	if page.Meta.NextToken != "" {
		sb.WriteString(fmt.Sprintf("\n**Next page**: `%s`\n", page.Meta.NextToken))
	}
	return sb.String(), nil
}

// FormatPosted renders a freshly posted tweet.
func (f *MarkdownFormatter) FormatPosted(posted *xapi.PostedTweet) (string, error) {
	if posted == nil {
		return "", nil
	}
	return fmt.Sprintf("Posted **%s**: %s\n", posted.ID, escapeMarkdownCell(oneLine(posted.Text))), nil
}

// FormatQueue renders approval queue entries.
func (f *MarkdownFormatter) FormatQueue(tweets []core.QueuedTweet) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Status | Created | Text | Decided | Posted |\n")
	sb.WriteString("|----|--------|---------|------|---------|--------|\n")
	for _, tweet := range tweets {
		created := tweet.CreatedAt
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			tweet.ID,
			tweet.Status,
			timestamp(&created),
			escapeMarkdownCell(oneLine(tweet.Text)),
			escapeMarkdownCell(queueDecision(tweet)),
			orDash(tweet.PostedTweetID),
		))
	}
	return sb.String(), nil
}

// FormatDiagnostics renders tracked endpoint budgets.
func (f *MarkdownFormatter) FormatDiagnostics(limits map[string]core.RateLimitSnapshot) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Endpoint | Remaining | Limit | Resets | Wait (s) |\n")
	sb.WriteString("|----------|-----------|-------|--------|----------|\n")
	for _, endpoint := range sortedEndpoints(limits) {
		snap := limits[endpoint]
		reset := snap.ResetAt
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %d |\n",
			escapeMarkdownCell(endpoint), snap.Remaining, snap.Limit, timestamp(&reset), snap.WaitSec))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
