package service_test

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

// fundedBranch prepares a condition, splits alice's collateral, and returns
// the position key of the first outcome branch.
func fundedBranch(t *testing.T, f *fixture, amount uint64) common.Hash {
	t.Helper()
	ctx := context.Background()
	cond, err := f.condSvc.Prepare(ctx, oracle, question("transfer-q"), 2)
	require.NoError(t, err)
	f.token.Mint(alice, u(amount))
	_, err = f.posSvc.Split(ctx, alice, usdc, ctf.RootSlot, cond.ID, u(amount))
	require.NoError(t, err)
	return ctf.PositionID(usdc, ctf.PayoutSlotID(ctf.RootSlot, cond.ID, 0))
}

func TestTransferServiceTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves value and writes both cells through", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 100)
		staleBefore := f.balCache.invalidations

		err := f.xferSvc.Transfer(ctx, alice, alice, bob, key, u(30))
		require.NoError(t, err)

		fromStored, err := f.balances.GetBalance(ctx, key, alice)
		require.NoError(t, err)
		assert.Equal(t, u(70), fromStored)
		toStored, err := f.balances.GetBalance(ctx, key, bob)
		require.NoError(t, err)
		assert.Equal(t, u(30), toStored)
		assert.Equal(t, staleBefore+2, f.balCache.invalidations)

		assert.Equal(t, domain.EventTransfer, f.events.recs[len(f.events.recs)-1].Type)
		assert.Equal(t, "transfer", f.audit.events[len(f.audit.events)-1])
	})

	t.Run("operator spends allowance and the spend is persisted", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 100)

		require.NoError(t, f.xferSvc.Approve(ctx, alice, bob, key, u(0), u(50)))

		err := f.xferSvc.Transfer(ctx, bob, alice, bob, key, u(20))
		require.NoError(t, err)

		remaining, err := f.balances.GetAllowance(ctx, key, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, u(30), remaining)
	})

	t.Run("insufficient balance aborts with nothing persisted", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 10)
		before := len(f.events.recs)

		err := f.xferSvc.Transfer(ctx, alice, alice, bob, key, u(11))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Len(t, f.events.recs, before)
		_, err = f.balances.GetBalance(ctx, key, bob)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("read-only deployment rejects writes", func(t *testing.T) {
		f := newReadOnlyFixture(newFixture(t))
		err := f.xferSvc.Transfer(ctx, alice, alice, bob, question("k"), u(1))
		assert.ErrorIs(t, err, domain.ErrReadOnly)
	})
}

type ackReceiver struct {
	ack  [4]byte
	err  error
	seen int
}

func (r *ackReceiver) OnTransferReceived(_, _ common.Address, _ common.Hash, _ *uint256.Int, _ []byte) ([4]byte, error) {
	r.seen++
	return r.ack, r.err
}

func TestTransferServiceSafeTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("acknowledged transfer sticks", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 100)
		recv := &ackReceiver{ack: domain.TransferAck}
		require.NoError(t, f.xferSvc.RegisterReceiver(bob, recv))

		err := f.xferSvc.SafeTransfer(ctx, alice, alice, bob, key, u(40), []byte("memo"))
		require.NoError(t, err)
		assert.Equal(t, 1, recv.seen)

		toStored, err := f.balances.GetBalance(ctx, key, bob)
		require.NoError(t, err)
		assert.Equal(t, u(40), toStored)
	})

	t.Run("rejection rolls the move back", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 100)
		require.NoError(t, f.xferSvc.RegisterReceiver(bob, &ackReceiver{err: errors.New("vault sealed")}))

		err := f.xferSvc.SafeTransfer(ctx, alice, alice, bob, key, u(40), nil)
		assert.ErrorIs(t, err, domain.ErrTransferRejected)

		bal, err := f.posSvc.BalanceOf(ctx, key, alice)
		require.NoError(t, err)
		assert.Equal(t, u(100), bal)
	})
}

func TestTransferServiceApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the allowance cell", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 10)

		require.NoError(t, f.xferSvc.Approve(ctx, alice, bob, key, u(0), u(25)))

		stored, err := f.balances.GetAllowance(ctx, key, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, u(25), stored)
		assert.Equal(t, domain.EventApproval, f.events.recs[len(f.events.recs)-1].Type)
		assert.Equal(t, "approval", f.audit.events[len(f.audit.events)-1])
	})

	t.Run("stale current value is rejected", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 10)
		require.NoError(t, f.xferSvc.Approve(ctx, alice, bob, key, u(0), u(25)))

		err := f.xferSvc.Approve(ctx, alice, bob, key, u(10), u(40))
		assert.ErrorIs(t, err, domain.ErrStaleApproval)
	})

	t.Run("zero reset needs no current value", func(t *testing.T) {
		f := newFixture(t)
		key := fundedBranch(t, f, 10)
		require.NoError(t, f.xferSvc.Approve(ctx, alice, bob, key, u(0), u(25)))
		require.NoError(t, f.xferSvc.Approve(ctx, alice, bob, key, u(999), u(0)))

		live, err := f.xferSvc.Allowance(ctx, key, alice, bob)
		require.NoError(t, err)
		assert.True(t, live.IsZero())
	})
}

func TestTransferServiceAllowanceReads(t *testing.T) {
	ctx := context.Background()

	primary := newFixture(t)
	key := fundedBranch(t, primary, 10)
	require.NoError(t, primary.xferSvc.Approve(ctx, alice, bob, key, u(0), u(7)))

	replica := newReadOnlyFixture(primary)
	stored, err := replica.xferSvc.Allowance(ctx, key, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, u(7), stored)

	missing, err := replica.xferSvc.Allowance(ctx, key, bob, alice)
	require.NoError(t, err)
	assert.True(t, missing.IsZero())
}
