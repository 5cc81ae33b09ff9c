package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/appidentity"

	"github.com/ragly/xpanel/internal/observability"
	"github.com/ragly/xpanel/internal/xapi"
)

// Pinger is satisfied by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports the approval queue database as unhealthy when it
// stops answering pings.
func StoreChecker(p Pinger) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		if p == nil {
			return errors.New("store not configured")
		}
		return p.Ping(ctx)
	})
}

// CredentialsChecker fails when any OAuth credential is missing.
func CredentialsChecker(creds xapi.Credentials) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		return creds.Validate()
	})
}

// TelemetryChecker fails when the metrics pipeline was never initialized.
func TelemetryChecker() HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		if observability.TelemetrySystem == nil {
			return errors.New("telemetry not initialized")
		}
		return nil
	})
}

// IdentityChecker fails when the embedded app identity is missing a field
// the CLI and config loader depend on.
func IdentityChecker(identity *appidentity.Identity) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		if identity == nil {
			return errors.New("app identity not loaded")
		}
		for field, value := range map[string]string{
			"binary name": identity.BinaryName,
			"env prefix":  identity.EnvPrefix,
			"config name": identity.ConfigName,
		} {
			if value == "" {
				return fmt.Errorf("app identity missing %s", field)
			}
		}
		return nil
	})
}
