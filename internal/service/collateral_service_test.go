package service_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/service"
)

var wbtc = common.HexToAddress("0x3b7c")

func TestCollateralServiceRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.collSvc.Register(ctx, domain.CollateralAsset{
		Address:  wbtc,
		Symbol:   "WBTC",
		Name:     "Wrapped BTC",
		Decimals: 8,
	})
	require.NoError(t, err)

	asset, err := f.collSvc.Asset(ctx, wbtc)
	require.NoError(t, err)
	assert.Equal(t, "WBTC", asset.Symbol)
	assert.False(t, asset.CreatedAt.IsZero())

	stored, err := f.collateral.GetAsset(ctx, wbtc)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), stored.Decimals)

	assets, err := f.collSvc.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	_, err = f.collSvc.Asset(ctx, common.HexToAddress("0xffff"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCollateralServiceMint(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the account and persists the holding", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.collSvc.Mint(ctx, usdc, alice, u(500)))

		holding, err := f.collSvc.Holding(ctx, usdc, alice)
		require.NoError(t, err)
		assert.Equal(t, u(500), holding)

		stored, err := f.collateral.GetHolding(ctx, usdc, alice)
		require.NoError(t, err)
		assert.Equal(t, u(500), stored)

		assert.Equal(t, "collateral_mint", f.audit.events[len(f.audit.events)-1])
	})

	t.Run("unknown asset is rejected", func(t *testing.T) {
		f := newFixture(t)
		err := f.collSvc.Mint(ctx, wbtc, alice, u(1))
		assert.ErrorIs(t, err, domain.ErrUnknownCollateral)
	})

	t.Run("disabled faucet rejects minting", func(t *testing.T) {
		f := newFixture(t)
		gated := service.NewCollateralService(f.registry, custody, f.collateral, false, f.audit, testLogger())
		err := gated.Mint(ctx, usdc, alice, u(1))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestCollateralServiceRestoreHoldings(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.collSvc.Mint(ctx, usdc, alice, u(250)))
	require.NoError(t, f.collSvc.Mint(ctx, usdc, bob, u(40)))

	// A fresh registry simulates a restart reading the same store.
	registry := collateral.NewRegistry()
	registry.Register(collateral.NewToken(domain.CollateralAsset{
		Address: usdc, Symbol: "USDC", Name: "USD Coin", Decimals: 6,
	}, custody))
	restarted := service.NewCollateralService(registry, custody, f.collateral, false, f.audit, testLogger())

	restored, err := restarted.RestoreHoldings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	holding, err := restarted.Holding(ctx, usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, u(250), holding)
}

func TestCollateralServiceSnapshotHoldings(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.token.Mint(alice, u(11))
	f.token.Mint(bob, u(22))

	count, err := f.collSvc.SnapshotHoldings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := f.collateral.GetHolding(ctx, usdc, bob)
	require.NoError(t, err)
	assert.Equal(t, u(22), stored)
}

func TestCollateralServiceReadOnly(t *testing.T) {
	ctx := context.Background()

	primary := newFixture(t)
	require.NoError(t, primary.collSvc.Mint(ctx, usdc, alice, u(9)))
	require.NoError(t, primary.collSvc.Register(ctx, domain.CollateralAsset{
		Address: wbtc, Symbol: "WBTC", Name: "Wrapped BTC", Decimals: 8,
	}))

	replica := newReadOnlyFixture(primary)

	assets, err := replica.collSvc.Assets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1) // only the persisted registration

	holding, err := replica.collSvc.Holding(ctx, usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, u(9), holding)

	missing, err := replica.collSvc.Holding(ctx, usdc, bob)
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	assert.ErrorIs(t, replica.collSvc.Mint(ctx, usdc, alice, u(1)), domain.ErrReadOnly)
	_, err = replica.collSvc.RestoreHoldings(ctx)
	assert.ErrorIs(t, err, domain.ErrReadOnly)
}
