package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

const maxCellRunes = 80

// oneLine collapses whitespace and shortens s to fit a table cell.
func oneLine(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	runes := []rune(clean)
	if len(runes) <= maxCellRunes {
		return clean
	}
	return string(runes[:maxCellRunes-1]) + "…"
}

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func engagement(m *xapi.PublicMetrics) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("♥%d ↻%d ↩%d", m.LikeCount, m.RetweetCount, m.ReplyCount)
}

func authorLabel(page *xapi.TweetPage, t xapi.Tweet) string {
	if u, ok := page.Author(t); ok && u.Username != "" {
		return "@" + u.Username
	}
	if t.AuthorID != "" {
		return t.AuthorID
	}
	return "-"
}

func queueDecision(t core.QueuedTweet) string {
	if t.DecidedBy == "" {
		return "-"
	}
	return fmt.Sprintf("%s @ %s", t.DecidedBy, timestamp(t.DecidedAt))
}

func sortedEndpoints(limits map[string]core.RateLimitSnapshot) []string {
	keys := make([]string, 0, len(limits))
	for k := range limits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
