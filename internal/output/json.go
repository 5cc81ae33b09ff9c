package output

import (
	"encoding/json"

	"github.com/ragly/xpanel/internal/core"
	"github.com/ragly/xpanel/internal/xapi"
)

// JSONFormatter renders results as JSON, shaped like the HTTP API responses.
type JSONFormatter struct {
	Indent bool
}

// FormatUser renders the account as {"data": user}.
func (f *JSONFormatter) FormatUser(user *xapi.User) (string, error) {
	return f.marshal(map[string]any{"data": user})
}

// FormatTweets renders a page as returned upstream.
func (f *JSONFormatter) FormatTweets(page *xapi.TweetPage) (string, error) {
	if page == nil {
		page = &xapi.TweetPage{}
	}
	return f.marshal(page)
}

// FormatPosted renders a posted tweet as {"data": tweet}.
func (f *JSONFormatter) FormatPosted(posted *xapi.PostedTweet) (string, error) {
	return f.marshal(map[string]any{"data": posted})
}

// FormatQueue renders queue entries as {"queue": [...]}.
func (f *JSONFormatter) FormatQueue(tweets []core.QueuedTweet) (string, error) {
	if tweets == nil {
		tweets = []core.QueuedTweet{}
	}
	return f.marshal(map[string]any{"queue": tweets})
}

// FormatDiagnostics renders tracked budgets as {"rate_limits": {...}}.
func (f *JSONFormatter) FormatDiagnostics(limits map[string]core.RateLimitSnapshot) (string, error) {
	if limits == nil {
		limits = map[string]core.RateLimitSnapshot{}
	}
	return f.marshal(map[string]any{"rate_limits": limits})
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
