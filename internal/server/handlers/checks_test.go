package handlers

import (
	"context"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/assert"
)

func TestIdentityChecker(t *testing.T) {
	ctx := context.Background()

	assert.EqualError(t, IdentityChecker(nil).CheckHealth(ctx), "app identity not loaded")
	assert.EqualError(t,
		IdentityChecker(&appidentity.Identity{BinaryName: "xpanel", ConfigName: "xpanel"}).CheckHealth(ctx),
		"app identity missing env prefix")
	assert.NoError(t,
		IdentityChecker(&appidentity.Identity{BinaryName: "xpanel", EnvPrefix: "XPANEL_", ConfigName: "xpanel"}).CheckHealth(ctx))
}

func TestStoreCheckerWithoutStore(t *testing.T) {
	assert.EqualError(t, StoreChecker(nil).CheckHealth(context.Background()), "store not configured")
}
