package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	return t
}

// FormatUser renders the account as a two-column table.
func (f *TableFormatter) FormatUser(user *xapi.User) (string, error) {
	if user == nil {
		return "", nil
	}

	t := newTable(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"ID", user.ID})
	t.AppendRow(table.Row{"Name", user.Name})
	t.AppendRow(table.Row{"Username", "@" + user.Username})
	if user.ProfileImageURL != "" {
		t.AppendRow(table.Row{"Avatar", user.ProfileImageURL})
	}
	return t.Render(), nil
}

// FormatTweets renders one page of tweets.
func (f *TableFormatter) FormatTweets(page *xapi.TweetPage) (string, error) {
	if page == nil {
		return "", nil
	}

	t := newTable(table.Row{"ID", "Author", "Created", "Text", "Engagement"})
	for _, tweet := range page.Data {
		t.AppendRow(table.Row{
			tweet.ID,
			authorLabel(page, tweet),
			timestamp(tweet.CreatedAt),
			oneLine(tweet.Text),
			engagement(tweet.PublicMetrics),
		})
	}

	summary := fmt.Sprintf("%d tweet(s)", len(page.Data))
	if page.Meta.NextToken != "" {
		summary += ", next: " + page.Meta.NextToken
	}
	t.AppendFooter(table.Row{"", "", "", summary, ""})
	return t.Render(), nil
}

// FormatPosted renders a freshly posted tweet.
func (f *TableFormatter) FormatPosted(posted *xapi.PostedTweet) (string, error) {
	if posted == nil {
		return "", nil
	}

	t := newTable(table.Row{"ID", "Text"})
	t.AppendRow(table.Row{posted.ID, oneLine(posted.Text)})
	return t.Render(), nil
}

// FormatQueue renders approval queue entries.
func (f *TableFormatter) FormatQueue(tweets []core.QueuedTweet) (string, error) {
	t := newTable(table.Row{"ID", "Status", "Created", "Text", "Decided", "Posted"})
	for _, tweet := range tweets {
		created := tweet.CreatedAt
		t.AppendRow(table.Row{
			tweet.ID,
			string(tweet.Status),
			timestamp(&created),
			oneLine(tweet.Text),
			queueDecision(tweet),
			orDash(tweet.PostedTweetID),
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d queued tweet(s)", len(tweets)), "", ""})
	return t.Render(), nil
}

// FormatDiagnostics renders tracked endpoint budgets.
func (f *TableFormatter) FormatDiagnostics(limits map[string]core.RateLimitSnapshot) (string, error) {
	t := newTable(table.Row{"Endpoint", "Remaining", "Limit", "Resets", "Wait (s)"})
	for _, endpoint := range sortedEndpoints(limits) {
		snap := limits[endpoint]
		reset := snap.ResetAt
		t.AppendRow(table.Row{endpoint, snap.Remaining, snap.Limit, timestamp(&reset), snap.WaitSec})
	}
	if len(limits) == 0 {
		t.AppendRow(table.Row{"(none tracked)", "", "", "", ""})
	}
	return t.Render(), nil
}
