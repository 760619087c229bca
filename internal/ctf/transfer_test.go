package ctf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
)

var carol = common.HexToAddress("0xca401")

// fundedAsset splits collateral for alice and returns the asset id of the
// first outcome branch, holding 100 units.
func fundedAsset(t *testing.T, f *fixture) common.Hash {
	t.Helper()
	id := f.prepare(t, "Q1", 2)
	f.fund(alice, 100)
	require.NoError(t, f.ledger.SplitPosition(context.Background(), alice, usdc, ctf.RootSlot, id, u(100)))
	return branchKey(ctf.RootSlot, id, 0)
}

type receiverCall struct {
	operator common.Address
	from     common.Address
	assetID  common.Hash
	value    *uint256.Int
	data     []byte
}

// stubReceiver acknowledges transfers with a fixed reply.
type stubReceiver struct {
	ack   [4]byte
	err   error
	calls []receiverCall
}

func (r *stubReceiver) OnTransferReceived(operator, from common.Address, assetID common.Hash, value *uint256.Int, data []byte) ([4]byte, error) {
	r.calls = append(r.calls, receiverCall{operator, from, assetID, value, data})
	return r.ack, r.err
}

func TestTransferFrom(t *testing.T) {
	t.Run("owner moves own balance", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		require.NoError(t, f.ledger.TransferFrom(alice, alice, bob, asset, u(40)))
		assert.Equal(t, u(60), f.ledger.BalanceOf(asset, alice))
		assert.Equal(t, u(40), f.ledger.BalanceOf(asset, bob))

		ev, ok := f.sink.last().(domain.Transfer)
		require.True(t, ok)
		assert.Equal(t, alice, ev.Operator)
		assert.Equal(t, alice, ev.From)
		assert.Equal(t, bob, ev.To)
		assert.Equal(t, asset, ev.AssetID)
		assert.Equal(t, u(40), ev.Value)
	})

	t.Run("operator needs an allowance", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		err := f.ledger.TransferFrom(carol, alice, bob, asset, u(10))
		assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(30)))
		require.NoError(t, f.ledger.TransferFrom(carol, alice, bob, asset, u(10)))

		assert.Equal(t, u(20), f.ledger.Allowance(asset, alice, carol))
		assert.Equal(t, u(90), f.ledger.BalanceOf(asset, alice))
		assert.Equal(t, u(10), f.ledger.BalanceOf(asset, bob))
	})

	t.Run("short balance aborts without touching the allowance", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)
		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(500)))

		err := f.ledger.TransferFrom(carol, alice, bob, asset, u(200))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, u(500), f.ledger.Allowance(asset, alice, carol))
		assert.Equal(t, u(100), f.ledger.BalanceOf(asset, alice))
	})

	t.Run("unknown asset reads as zero balance", func(t *testing.T) {
		f := newFixture(t)
		err := f.ledger.TransferFrom(alice, alice, bob, common.Hash{9}, u(1))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("recipient overflow aborts", func(t *testing.T) {
		f := newFixture(t)
		asset := common.Hash{7}
		max := new(uint256.Int).SetAllOne()
		require.NoError(t, f.ledger.Restore(nil, []domain.PositionBalance{
			{PositionID: asset, Account: alice, Balance: u(1)},
			{PositionID: asset, Account: bob, Balance: max},
		}, nil, 0))

		err := f.ledger.TransferFrom(alice, alice, bob, asset, u(1))
		assert.ErrorIs(t, err, domain.ErrAmountOverflow)
		assert.Equal(t, u(1), f.ledger.BalanceOf(asset, alice))
		assert.Equal(t, max, f.ledger.BalanceOf(asset, bob))
	})
}

func TestSafeTransferFrom(t *testing.T) {
	t.Run("plain accounts skip the callback", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		require.NoError(t, f.ledger.SafeTransferFrom(alice, alice, bob, asset, u(25), nil))
		assert.Equal(t, u(25), f.ledger.BalanceOf(asset, bob))
	})

	t.Run("registered receiver acknowledges", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)
		recv := &stubReceiver{ack: domain.TransferAck}
		f.ledger.RegisterReceiver(bob, recv)

		require.NoError(t, f.ledger.SafeTransferFrom(alice, alice, bob, asset, u(25), []byte("note")))
		assert.Equal(t, u(25), f.ledger.BalanceOf(asset, bob))

		require.Len(t, recv.calls, 1)
		call := recv.calls[0]
		assert.Equal(t, alice, call.operator)
		assert.Equal(t, alice, call.from)
		assert.Equal(t, asset, call.assetID)
		assert.Equal(t, u(25), call.value)
		assert.Equal(t, []byte("note"), call.data)
	})

	t.Run("wrong acknowledgment rolls the move back", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)
		f.ledger.RegisterReceiver(bob, &stubReceiver{ack: [4]byte{0xde, 0xad, 0xbe, 0xef}})
		events := len(f.sink.events)

		err := f.ledger.SafeTransferFrom(alice, alice, bob, asset, u(25), nil)
		assert.ErrorIs(t, err, domain.ErrTransferRejected)
		assert.Equal(t, u(100), f.ledger.BalanceOf(asset, alice))
		assert.True(t, f.ledger.BalanceOf(asset, bob).IsZero())
		assert.Len(t, f.sink.events, events)
	})

	t.Run("receiver error rolls back allowance too", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)
		f.ledger.RegisterReceiver(bob, &stubReceiver{err: errors.New("vault sealed")})
		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(30)))

		err := f.ledger.SafeTransferFrom(carol, alice, bob, asset, u(30), nil)
		assert.ErrorIs(t, err, domain.ErrTransferRejected)
		assert.Equal(t, u(30), f.ledger.Allowance(asset, alice, carol))
		assert.Equal(t, u(100), f.ledger.BalanceOf(asset, alice))
	})
}

func TestApprove(t *testing.T) {
	t.Run("guards against stale reads", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(5)))
		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(5), u(3)))

		err := f.ledger.Approve(alice, carol, asset, u(5), u(2))
		assert.ErrorIs(t, err, domain.ErrStaleApproval)
		assert.Equal(t, u(3), f.ledger.Allowance(asset, alice, carol))
	})

	t.Run("zeroing always succeeds", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(5)))
		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(999), u(0)))
		assert.True(t, f.ledger.Allowance(asset, alice, carol).IsZero())
	})

	t.Run("emits the new value", func(t *testing.T) {
		f := newFixture(t)
		asset := fundedAsset(t, f)

		require.NoError(t, f.ledger.Approve(alice, carol, asset, u(0), u(7)))
		ev, ok := f.sink.last().(domain.Approval)
		require.True(t, ok)
		assert.Equal(t, alice, ev.Owner)
		assert.Equal(t, carol, ev.Spender)
		assert.Equal(t, asset, ev.AssetID)
		assert.Equal(t, u(7), ev.Value)
	})

	t.Run("allowances are per asset id", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		asset0 := branchKey(ctf.RootSlot, id, 0)
		asset1 := branchKey(ctf.RootSlot, id, 1)

		require.NoError(t, f.ledger.Approve(alice, carol, asset0, u(0), u(9)))
		assert.Equal(t, u(9), f.ledger.Allowance(asset0, alice, carol))
		assert.True(t, f.ledger.Allowance(asset1, alice, carol).IsZero())
	})
}
