package ctf_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
)

var (
	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
	oracle  = common.HexToAddress("0x04ac1e")
	custody = common.HexToAddress("0xcafe")
	usdc    = common.HexToAddress("0x05dc")
)

type captureSink struct {
	seqs   []uint64
	events []domain.Event
}

func (s *captureSink) Append(seq uint64, _ time.Time, ev domain.Event) {
	s.seqs = append(s.seqs, seq)
	s.events = append(s.events, ev)
}

func (s *captureSink) last() domain.Event {
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

type fixture struct {
	ledger *ctf.Ledger
	token  *collateral.Token
	sink   *captureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := collateral.NewRegistry()
	token := collateral.NewToken(domain.CollateralAsset{
		Address:  usdc,
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
	}, custody)
	registry.Register(token)

	ledger := ctf.New(custody, registry)
	sink := &captureSink{}
	ledger.AddSink(sink)
	return &fixture{ledger: ledger, token: token, sink: sink}
}

// prepare registers a condition and returns its id.
func (f *fixture) prepare(t *testing.T, question string, count uint) common.Hash {
	t.Helper()
	id, err := f.ledger.PrepareCondition(oracle, ethcrypto.Keccak256Hash([]byte(question)), count)
	require.NoError(t, err)
	return id
}

// fund mints collateral for the account.
func (f *fixture) fund(account common.Address, amount uint64) {
	f.token.Mint(account, u(amount))
}

func (f *fixture) tokenBalance(t *testing.T, account common.Address) *uint256.Int {
	t.Helper()
	bal, err := f.token.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func u(n uint64) *uint256.Int {
	return uint256.NewInt(n)
}

// payoutResult packs numerators as consecutive 32-byte big-endian words.
func payoutResult(nums ...uint64) []byte {
	out := make([]byte, 0, 32*len(nums))
	for _, n := range nums {
		word := uint256.NewInt(n).Bytes32()
		out = append(out, word[:]...)
	}
	return out
}

// branchKey is the position key of one outcome branch under a parent slot.
func branchKey(parent, conditionID common.Hash, index uint) common.Hash {
	return ctf.PositionID(usdc, ctf.PayoutSlotID(parent, conditionID, index))
}

func TestPrepareCondition(t *testing.T) {
	question := ethcrypto.Keccak256Hash([]byte("champion-2026"))

	t.Run("registers and emits", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.ledger.PrepareCondition(oracle, question, 3)
		require.NoError(t, err)
		assert.Equal(t, ctf.ConditionID(oracle, question, 3), id)
		assert.Equal(t, uint(3), f.ledger.OutcomeSlotCount(id))

		require.Len(t, f.sink.events, 1)
		ev, ok := f.sink.last().(domain.ConditionPreparation)
		require.True(t, ok)
		assert.Equal(t, id, ev.ConditionID)
		assert.Equal(t, oracle, ev.Oracle)
		assert.Equal(t, question, ev.QuestionID)
		assert.Equal(t, uint(3), ev.OutcomeSlotCount)
	})

	t.Run("rejects re-preparation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.PrepareCondition(oracle, question, 3)
		require.NoError(t, err)
		_, err = f.ledger.PrepareCondition(oracle, question, 3)
		assert.ErrorIs(t, err, domain.ErrAlreadyPrepared)
	})

	t.Run("rejects zero outcome count", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.PrepareCondition(oracle, question, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidOutcomeCount)
	})

	t.Run("distinct triples coexist", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.ledger.PrepareCondition(oracle, question, 2)
		require.NoError(t, err)
		b, err := f.ledger.PrepareCondition(oracle, question, 3)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("unknown condition reads as unprepared", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, uint(0), f.ledger.OutcomeSlotCount(common.Hash{1}))
		_, err := f.ledger.Condition(common.Hash{1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestReportPayouts(t *testing.T) {
	question := ethcrypto.Keccak256Hash([]byte("Q1"))

	t.Run("records the payout vector", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)

		reported, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 3))
		require.NoError(t, err)
		assert.Equal(t, id, reported)

		cond, err := f.ledger.Condition(id)
		require.NoError(t, err)
		require.True(t, cond.Resolved())
		assert.Equal(t, u(4), cond.PayoutDenominator)
		require.Len(t, cond.PayoutNumerators, 2)
		assert.Equal(t, u(1), cond.PayoutNumerators[0])
		assert.Equal(t, u(3), cond.PayoutNumerators[1])
		require.NotNil(t, cond.ResolvedAt)

		ev, ok := f.sink.last().(domain.ConditionResolution)
		require.True(t, ok)
		assert.Equal(t, id, ev.ConditionID)
		assert.Equal(t, []byte(ev.Result), payoutResult(1, 3))
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		f := newFixture(t)
		f.prepare(t, "Q1", 2)

		_, err := f.ledger.ReportPayouts(oracle, question, nil)
		assert.ErrorIs(t, err, domain.ErrResultMalformed)
		_, err = f.ledger.ReportPayouts(oracle, question, []byte{1, 2, 3})
		assert.ErrorIs(t, err, domain.ErrResultMalformed)
	})

	t.Run("rejects an impostor oracle", func(t *testing.T) {
		f := newFixture(t)
		f.prepare(t, "Q1", 2)

		_, err := f.ledger.ReportPayouts(bob, question, payoutResult(1, 0))
		assert.ErrorIs(t, err, domain.ErrOutcomeCountMismatch)
	})

	t.Run("rejects a wrong-width vector", func(t *testing.T) {
		f := newFixture(t)
		f.prepare(t, "Q1", 2)

		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 2, 3))
		assert.ErrorIs(t, err, domain.ErrOutcomeCountMismatch)
	})

	t.Run("rejects an all zero vector", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)

		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(0, 0))
		assert.ErrorIs(t, err, domain.ErrAllZeroPayout)

		cond, err := f.ledger.Condition(id)
		require.NoError(t, err)
		assert.False(t, cond.Resolved())
	})

	t.Run("rejects a vector whose sum overflows", func(t *testing.T) {
		f := newFixture(t)
		f.prepare(t, "Q1", 2)

		max := new(uint256.Int).SetAllOne().Bytes32()
		one := uint256.NewInt(1).Bytes32()
		_, err := f.ledger.ReportPayouts(oracle, question, append(max[:], one[:]...))
		assert.ErrorIs(t, err, domain.ErrAmountOverflow)
	})

	t.Run("resolution is write once", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)

		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 3))
		require.NoError(t, err)
		_, err = f.ledger.ReportPayouts(oracle, question, payoutResult(3, 1))
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

		cond, err := f.ledger.Condition(id)
		require.NoError(t, err)
		assert.Equal(t, u(1), cond.PayoutNumerators[0])
	})
}

func TestSplitPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("root split pulls collateral and credits every branch", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 100)

		err := f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100))
		require.NoError(t, err)

		assert.True(t, f.tokenBalance(t, alice).IsZero())
		assert.Equal(t, u(100), f.tokenBalance(t, custody))
		assert.Equal(t, u(100), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 0), alice))
		assert.Equal(t, u(100), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 1), alice))

		ev, ok := f.sink.last().(domain.PositionSplit)
		require.True(t, ok)
		assert.Equal(t, alice, ev.Account)
		assert.Equal(t, ctf.RootSlot, ev.ParentSlotID)
		assert.Equal(t, u(100), ev.Amount)
	})

	t.Run("nested split debits the parent branch", func(t *testing.T) {
		f := newFixture(t)
		outer := f.prepare(t, "Q1", 2)
		inner := f.prepare(t, "Q2", 3)
		f.fund(alice, 50)

		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, outer, u(50)))

		parentSlot := ctf.PayoutSlotID(ctf.RootSlot, outer, 0)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, parentSlot, inner, u(20)))

		assert.Equal(t, u(30), f.ledger.BalanceOf(ctf.PositionID(usdc, parentSlot), alice))
		for i := uint(0); i < 3; i++ {
			assert.Equal(t, u(20), f.ledger.BalanceOf(branchKey(parentSlot, inner, i), alice))
		}
		// The sibling branch of the outer condition is untouched.
		assert.Equal(t, u(50), f.ledger.BalanceOf(branchKey(ctf.RootSlot, outer, 1), alice))
	})

	t.Run("unprepared condition aborts", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 10)
		err := f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, common.Hash{1}, u(10))
		assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
		assert.Equal(t, u(10), f.tokenBalance(t, alice))
	})

	t.Run("failed collateral pull aborts", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 5)

		err := f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(10))
		assert.ErrorIs(t, err, domain.ErrCollateralTransfer)
		assert.Equal(t, u(5), f.tokenBalance(t, alice))
		assert.True(t, f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 0), alice).IsZero())
	})

	t.Run("unknown collateral aborts", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		err := f.ledger.SplitPosition(ctx, alice, common.HexToAddress("0xdead"), ctf.RootSlot, id, u(1))
		assert.ErrorIs(t, err, domain.ErrUnknownCollateral)
	})

	t.Run("short parent branch aborts nested split", func(t *testing.T) {
		f := newFixture(t)
		outer := f.prepare(t, "Q1", 2)
		inner := f.prepare(t, "Q2", 2)
		f.fund(alice, 10)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, outer, u(10)))

		parentSlot := ctf.PayoutSlotID(ctf.RootSlot, outer, 0)
		err := f.ledger.SplitPosition(ctx, alice, usdc, parentSlot, inner, u(11))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, u(10), f.ledger.BalanceOf(ctf.PositionID(usdc, parentSlot), alice))
	})
}

func TestMergePosition(t *testing.T) {
	ctx := context.Background()

	t.Run("root merge is the inverse of split", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 100)

		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))
		require.NoError(t, f.ledger.MergePosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))

		assert.Equal(t, u(100), f.tokenBalance(t, alice))
		assert.True(t, f.tokenBalance(t, custody).IsZero())
		assert.True(t, f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 0), alice).IsZero())
		assert.True(t, f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 1), alice).IsZero())
	})

	t.Run("partial merge leaves the remainder split", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 3)
		f.fund(alice, 100)

		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))
		require.NoError(t, f.ledger.MergePosition(ctx, alice, usdc, ctf.RootSlot, id, u(40)))

		assert.Equal(t, u(40), f.tokenBalance(t, alice))
		assert.Equal(t, u(60), f.tokenBalance(t, custody))
		for i := uint(0); i < 3; i++ {
			assert.Equal(t, u(60), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, i), alice))
		}
	})

	t.Run("one short branch aborts the whole merge", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 100)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))

		// Drain one branch so the merge cannot cover both.
		key1 := ctf.PayoutSlotID(ctf.RootSlot, id, 1)
		require.NoError(t, f.ledger.TransferFrom(alice, alice, bob, ctf.PositionID(usdc, key1), u(80)))

		err := f.ledger.MergePosition(ctx, alice, usdc, ctf.RootSlot, id, u(50))
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, u(100), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 0), alice))
		assert.Equal(t, u(20), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 1), alice))
		assert.True(t, f.tokenBalance(t, alice).IsZero())
	})

	t.Run("nested merge credits the parent branch", func(t *testing.T) {
		f := newFixture(t)
		outer := f.prepare(t, "Q1", 2)
		inner := f.prepare(t, "Q2", 2)
		f.fund(alice, 30)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, outer, u(30)))

		parentSlot := ctf.PayoutSlotID(ctf.RootSlot, outer, 0)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, parentSlot, inner, u(30)))
		require.NoError(t, f.ledger.MergePosition(ctx, alice, usdc, parentSlot, inner, u(12)))

		assert.Equal(t, u(12), f.ledger.BalanceOf(ctf.PositionID(usdc, parentSlot), alice))
		assert.Equal(t, u(18), f.ledger.BalanceOf(branchKey(parentSlot, inner, 0), alice))
	})

	t.Run("unprepared condition aborts", func(t *testing.T) {
		f := newFixture(t)
		err := f.ledger.MergePosition(ctx, alice, usdc, ctf.RootSlot, common.Hash{1}, u(1))
		assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
	})
}

func TestRedeemPayout(t *testing.T) {
	ctx := context.Background()
	question := ethcrypto.Keccak256Hash([]byte("Q1"))

	t.Run("pays proportional shares", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 100)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))

		// Hand the second branch to bob so each account redeems one outcome.
		require.NoError(t, f.ledger.TransferFrom(alice, alice, bob, branchKey(ctf.RootSlot, id, 1), u(100)))

		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 3))
		require.NoError(t, err)

		paid, err := f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		require.NoError(t, err)
		assert.Equal(t, u(25), paid)
		assert.Equal(t, u(25), f.tokenBalance(t, alice))

		paid, err = f.ledger.RedeemPayout(ctx, bob, usdc, ctf.RootSlot, id)
		require.NoError(t, err)
		assert.Equal(t, u(75), paid)
		assert.Equal(t, u(75), f.tokenBalance(t, bob))

		assert.True(t, f.tokenBalance(t, custody).IsZero())
	})

	t.Run("redemption is idempotent after the first call", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 100)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))
		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 3))
		require.NoError(t, err)

		paid, err := f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		require.NoError(t, err)
		assert.Equal(t, u(100), paid)

		events := len(f.sink.events)
		paid, err = f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())

		// The zero redemption still emits its event.
		require.Len(t, f.sink.events, events+1)
		ev, ok := f.sink.last().(domain.PayoutRedemption)
		require.True(t, ok)
		assert.True(t, ev.Payout.IsZero())
	})

	t.Run("truncation dust stays in custody", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 10)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(10)))
		_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 2))
		require.NoError(t, err)

		// 10*1/3 + 10*2/3 = 3 + 6: one unit of dust is not swept.
		paid, err := f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		require.NoError(t, err)
		assert.Equal(t, u(9), paid)
		assert.Equal(t, u(1), f.tokenBalance(t, custody))
	})

	t.Run("unresolved condition aborts", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		_, err := f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		assert.ErrorIs(t, err, domain.ErrResultNotReceived)
	})

	t.Run("oversized numerator cannot wrap a payout", func(t *testing.T) {
		f := newFixture(t)
		id := f.prepare(t, "Q1", 2)
		f.fund(alice, 2)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(2)))

		// Numerators (2^256-2, 1): the denominator still fits the word, but
		// a held balance of 2 times the first numerator does not.
		big := new(uint256.Int).SetAllOne()
		big.Sub(big, u(1))
		word := big.Bytes32()
		one := uint256.NewInt(1).Bytes32()
		_, err := f.ledger.ReportPayouts(oracle, question, append(word[:], one[:]...))
		require.NoError(t, err)

		_, err = f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
		assert.ErrorIs(t, err, domain.ErrAmountOverflow)
		assert.Equal(t, u(2), f.ledger.BalanceOf(branchKey(ctf.RootSlot, id, 0), alice))
	})

	t.Run("unprepared condition aborts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, common.Hash{1})
		assert.ErrorIs(t, err, domain.ErrConditionNotPrepared)
	})

	t.Run("nested redemption credits the parent position", func(t *testing.T) {
		f := newFixture(t)
		outer := f.prepare(t, "Q1", 2)
		inner := f.prepare(t, "Q2", 2)
		f.fund(alice, 40)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, outer, u(40)))

		parentSlot := ctf.PayoutSlotID(ctf.RootSlot, outer, 0)
		require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, parentSlot, inner, u(40)))

		_, err := f.ledger.ReportPayouts(oracle, ethcrypto.Keccak256Hash([]byte("Q2")), payoutResult(1, 1))
		require.NoError(t, err)

		paid, err := f.ledger.RedeemPayout(ctx, alice, usdc, parentSlot, inner)
		require.NoError(t, err)
		assert.Equal(t, u(40), paid)
		assert.Equal(t, u(40), f.ledger.BalanceOf(ctf.PositionID(usdc, parentSlot), alice))
		// Collateral stays custodied until the outer condition resolves.
		assert.Equal(t, u(40), f.tokenBalance(t, custody))
	})
}

func TestEventSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.prepare(t, "Q1", 2)
	f.fund(alice, 10)
	require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(10)))
	require.NoError(t, f.ledger.MergePosition(ctx, alice, usdc, ctf.RootSlot, id, u(10)))

	require.Len(t, f.sink.seqs, 3)
	for i, seq := range f.sink.seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
	assert.Equal(t, uint64(3), f.ledger.LastSeq())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	question := ethcrypto.Keccak256Hash([]byte("Q1"))

	f := newFixture(t)
	id := f.prepare(t, "Q1", 2)
	f.fund(alice, 100)
	require.NoError(t, f.ledger.SplitPosition(ctx, alice, usdc, ctf.RootSlot, id, u(100)))
	_, err := f.ledger.ReportPayouts(oracle, question, payoutResult(1, 3))
	require.NoError(t, err)

	cond, err := f.ledger.Condition(id)
	require.NoError(t, err)

	// Rebuild a second ledger from the first one's durable state.
	registry := collateral.NewRegistry()
	registry.Register(f.token)
	rebuilt := ctf.New(custody, registry)
	err = rebuilt.Restore(
		[]domain.Condition{cond},
		[]domain.PositionBalance{
			{PositionID: branchKey(ctf.RootSlot, id, 0), Account: alice, Balance: u(100)},
			{PositionID: branchKey(ctf.RootSlot, id, 1), Account: alice, Balance: u(100)},
		},
		nil,
		f.ledger.LastSeq(),
	)
	require.NoError(t, err)

	assert.Equal(t, uint(2), rebuilt.OutcomeSlotCount(id))
	assert.Equal(t, f.ledger.LastSeq(), rebuilt.LastSeq())

	paid, err := rebuilt.RedeemPayout(ctx, alice, usdc, ctf.RootSlot, id)
	require.NoError(t, err)
	assert.Equal(t, u(100), paid)
}
