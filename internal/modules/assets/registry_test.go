package assets

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/holdings/internal/domain"
	testutil "github.com/aristath/holdings/internal/testing"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	testutil.SeedLedger(t, db.Conn())
	return NewRegistry(db.Conn(), zerolog.Nop())
}

func TestRegistry_LookupCurrency(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	currency, err := registry.LookupCurrency(ctx, testutil.AssetVWCE)
	require.NoError(t, err)
	assert.Equal(t, "EUR", currency)

	_, err = registry.LookupCurrency(ctx, "unknown")
	assert.True(t, domain.IsNotFound(err))
}

func TestRegistry_Exists(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	ok, err := registry.Exists(ctx, testutil.AssetAAPL)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = registry.Exists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_Create(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	a, err := registry.Create(ctx, domain.Asset{Symbol: " msft ", Name: "Microsoft", Currency: "usd"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "MSFT", a.Symbol)
	assert.Equal(t, "USD", a.Currency)

	got, err := registry.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, *a, *got)

	all, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = registry.Create(ctx, domain.Asset{Symbol: "", Currency: "USD"})
	assert.True(t, domain.IsValidation(err))
	_, err = registry.Create(ctx, domain.Asset{Symbol: "X", Currency: "EURO"})
	assert.True(t, domain.IsValidation(err))
}

func TestRegistry_ImplementsAssetRegistry(t *testing.T) {
	var _ domain.AssetRegistry = (*Registry)(nil)
}
