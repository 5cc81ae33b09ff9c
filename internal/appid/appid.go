package appid

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// Default is the identity used when no .fulmen/app.yaml can be discovered,
// which is the normal case for an installed binary.
var Default = appidentity.Identity{
	Vendor:      "ragly",
	BinaryName:  "xpanel",
	ConfigName:  "xpanel",
	EnvPrefix:   "XPANEL_",
	Description: "Rate-limit aware X (Twitter) panel and API client",
}

// Get resolves the app identity. An explicitly configured identity path stays
// authoritative: if it points nowhere the error is returned, not masked.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := appidentity.Get(ctx)
	if err == nil && identity != nil {
		return identity, nil
	}

	var notFound *appidentity.NotFoundError
	if errors.As(err, &notFound) && strings.TrimSpace(os.Getenv(appidentity.EnvIdentityPath)) == "" {
		fallback := Default
		return &fallback, nil
	}
	if err == nil {
		err = errors.New("app identity unavailable")
	}
	return nil, err
}
