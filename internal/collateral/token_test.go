package collateral_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/domain"
)

var (
	custody = common.HexToAddress("0xcafe")
	holder  = common.HexToAddress("0xa11ce")
	payee   = common.HexToAddress("0xb0b")
)

func newToken() *collateral.Token {
	return collateral.NewToken(domain.CollateralAsset{
		Address:  common.HexToAddress("0x05dc"),
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
	}, custody)
}

func TestTokenTransfers(t *testing.T) {
	ctx := context.Background()

	t.Run("mint then pull into custody", func(t *testing.T) {
		tok := newToken()
		tok.Mint(holder, uint256.NewInt(50))

		require.NoError(t, tok.TransferFrom(ctx, holder, custody, uint256.NewInt(30)))

		bal, err := tok.BalanceOf(ctx, holder)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(20), bal)
		bal, err = tok.BalanceOf(ctx, custody)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(30), bal)
	})

	t.Run("transfer pays out of custody", func(t *testing.T) {
		tok := newToken()
		tok.Mint(custody, uint256.NewInt(10))

		require.NoError(t, tok.Transfer(ctx, payee, uint256.NewInt(10)))
		bal, err := tok.BalanceOf(ctx, payee)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(10), bal)
	})

	t.Run("insufficient funds abort", func(t *testing.T) {
		tok := newToken()
		tok.Mint(holder, uint256.NewInt(5))

		err := tok.TransferFrom(ctx, holder, custody, uint256.NewInt(6))
		require.Error(t, err)

		bal, err := tok.BalanceOf(ctx, holder)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(5), bal)
	})

	t.Run("holdings skip zero rows", func(t *testing.T) {
		tok := newToken()
		tok.Mint(holder, uint256.NewInt(5))
		require.NoError(t, tok.TransferFrom(ctx, holder, payee, uint256.NewInt(5)))

		rows := tok.Holdings()
		require.Len(t, rows, 1)
		assert.Equal(t, payee, rows[0].Account)
	})
}

func TestRegistry(t *testing.T) {
	reg := collateral.NewRegistry()
	tok := newToken()
	reg.Register(tok)

	resolved, err := reg.Resolve(tok.Meta().Address)
	require.NoError(t, err)
	assert.NotNil(t, resolved)

	_, err = reg.Resolve(common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, domain.ErrUnknownCollateral)

	assets := reg.List()
	require.Len(t, assets, 1)
	assert.Equal(t, "USDC", assets[0].Symbol)
}
