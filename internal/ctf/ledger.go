package ctf

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// Ledger is the conditional-payment accounting engine. Every operation runs
// to completion under one mutex: it either commits all of its mutations and
// emits its event, or returns an error having changed nothing. Sinks and
// receiver callbacks are invoked while the mutex is held and must not call
// back in.
type Ledger struct {
	mu sync.Mutex

	custody    common.Address
	collateral domain.CollateralResolver

	conditions map[common.Hash]*conditionState
	balances   map[common.Hash]map[common.Address]*uint256.Int
	allowances map[common.Hash]map[common.Address]map[common.Address]*uint256.Int
	receivers  map[common.Address]domain.TransferReceiver

	sinks []domain.EventSink
	seq   uint64
	now   func() time.Time
}

type conditionState struct {
	oracle           common.Address
	questionID       common.Hash
	outcomeSlotCount uint
	numerators       []*uint256.Int
	denominator      *uint256.Int
	result           []byte
	preparedAt       time.Time
	resolvedAt       *time.Time
}

func (c *conditionState) resolved() bool {
	return !c.denominator.IsZero()
}

// New returns an empty ledger. Collateral pulled by root splits is custodied
// under the given account; the resolver maps collateral addresses to their
// assets.
func New(custody common.Address, collateral domain.CollateralResolver) *Ledger {
	return &Ledger{
		custody:    custody,
		collateral: collateral,
		conditions: make(map[common.Hash]*conditionState),
		balances:   make(map[common.Hash]map[common.Address]*uint256.Int),
		allowances: make(map[common.Hash]map[common.Address]map[common.Address]*uint256.Int),
		receivers:  make(map[common.Address]domain.TransferReceiver),
		now:        time.Now,
	}
}

// AddSink registers an event sink. Sinks receive every event in commit order.
func (l *Ledger) AddSink(s domain.EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// RegisterReceiver marks an account as contract-like: safe transfers to it
// must be acknowledged through the callback.
func (l *Ledger) RegisterReceiver(account common.Address, r domain.TransferReceiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers[account] = r
}

// Restore seeds the ledger from persisted state. It must run before the
// ledger serves operations.
func (l *Ledger) Restore(conditions []domain.Condition, balances []domain.PositionBalance, allowances []domain.Allowance, lastSeq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range conditions {
		if c.OutcomeSlotCount == 0 {
			return fmt.Errorf("ctf: restore condition %s: %w", c.ID, domain.ErrInvalidOutcomeCount)
		}
		st := &conditionState{
			oracle:           c.Oracle,
			questionID:       c.QuestionID,
			outcomeSlotCount: c.OutcomeSlotCount,
			numerators:       make([]*uint256.Int, c.OutcomeSlotCount),
			denominator:      new(uint256.Int),
			preparedAt:       c.PreparedAt,
			resolvedAt:       c.ResolvedAt,
		}
		for i := range st.numerators {
			st.numerators[i] = new(uint256.Int)
		}
		if len(c.PayoutNumerators) > 0 {
			if uint(len(c.PayoutNumerators)) != c.OutcomeSlotCount {
				return fmt.Errorf("ctf: restore condition %s: numerator count %d does not match outcome count %d",
					c.ID, len(c.PayoutNumerators), c.OutcomeSlotCount)
			}
			for i, n := range c.PayoutNumerators {
				st.numerators[i].Set(n)
			}
		}
		if c.PayoutDenominator != nil {
			st.denominator.Set(c.PayoutDenominator)
		}
		l.conditions[c.ID] = st
	}

	for _, b := range balances {
		if b.Balance == nil || b.Balance.IsZero() {
			continue
		}
		l.setBalance(b.PositionID, b.Account, new(uint256.Int).Set(b.Balance))
	}
	for _, a := range allowances {
		if a.Value == nil || a.Value.IsZero() {
			continue
		}
		l.setAllowance(a.AssetID, a.Owner, a.Spender, new(uint256.Int).Set(a.Value))
	}

	l.seq = lastSeq
	return nil
}

// OutcomeSlotCount returns the declared outcome count of a condition, or 0
// when the condition was never prepared.
func (l *Ledger) OutcomeSlotCount(conditionID common.Hash) uint {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.conditions[conditionID]
	if !ok {
		return 0
	}
	return st.outcomeSlotCount
}

// Condition returns a snapshot of a prepared condition.
func (l *Ledger) Condition(conditionID common.Hash) (domain.Condition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.conditions[conditionID]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return l.snapshotCondition(conditionID, st), nil
}

func (l *Ledger) snapshotCondition(id common.Hash, st *conditionState) domain.Condition {
	c := domain.Condition{
		ID:                id,
		Oracle:            st.oracle,
		QuestionID:        st.questionID,
		OutcomeSlotCount:  st.outcomeSlotCount,
		PayoutDenominator: new(uint256.Int).Set(st.denominator),
		PreparedAt:        st.preparedAt,
		ResolvedAt:        st.resolvedAt,
	}
	if st.resolved() {
		c.PayoutNumerators = make([]*uint256.Int, len(st.numerators))
		for i, n := range st.numerators {
			c.PayoutNumerators[i] = new(uint256.Int).Set(n)
		}
	}
	return c
}

// BalanceOf returns the holder's balance at a position key, zero for unknown
// keys.
func (l *Ledger) BalanceOf(positionID common.Hash, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balance(positionID, account))
}

// Allowance returns the spender's remaining budget on the owner's asset
// balance, zero for unknown keys.
func (l *Ledger) Allowance(assetID common.Hash, owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.allowance(assetID, owner, spender))
}

// LastSeq returns the sequence number of the most recently committed event.
func (l *Ledger) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// emit assigns the next sequence number and fans the event out. Callers hold
// the mutex.
func (l *Ledger) emit(ev domain.Event) {
	l.seq++
	at := l.now()
	for _, s := range l.sinks {
		s.Append(l.seq, at, ev)
	}
}

func (l *Ledger) balance(key common.Hash, account common.Address) *uint256.Int {
	if m, ok := l.balances[key]; ok {
		if b, ok := m[account]; ok {
			return b
		}
	}
	return new(uint256.Int)
}

func (l *Ledger) setBalance(key common.Hash, account common.Address, v *uint256.Int) {
	m, ok := l.balances[key]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		l.balances[key] = m
	}
	m[account] = v
}

// debit fails without mutating when the held balance is short.
func (l *Ledger) debit(key common.Hash, account common.Address, amount *uint256.Int) error {
	held := l.balance(key, account)
	if held.Lt(amount) {
		return domain.ErrInsufficientBalance
	}
	l.setBalance(key, account, new(uint256.Int).Sub(held, amount))
	return nil
}

// credit adds amount to the held balance. Callers have already run
// checkCredit, so the addition cannot wrap.
func (l *Ledger) credit(key common.Hash, account common.Address, amount *uint256.Int) {
	held := l.balance(key, account)
	l.setBalance(key, account, new(uint256.Int).Add(held, amount))
}

// checkCredit fails when crediting amount to the held balance would overflow
// the 256-bit word. It runs before any mutation of the operation.
func (l *Ledger) checkCredit(key common.Hash, account common.Address, amount *uint256.Int) error {
	if _, overflow := new(uint256.Int).AddOverflow(l.balance(key, account), amount); overflow {
		return domain.ErrAmountOverflow
	}
	return nil
}

func (l *Ledger) allowance(assetID common.Hash, owner, spender common.Address) *uint256.Int {
	if byOwner, ok := l.allowances[assetID]; ok {
		if bySpender, ok := byOwner[owner]; ok {
			if v, ok := bySpender[spender]; ok {
				return v
			}
		}
	}
	return new(uint256.Int)
}

func (l *Ledger) setAllowance(assetID common.Hash, owner, spender common.Address, v *uint256.Int) {
	byOwner, ok := l.allowances[assetID]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*uint256.Int)
		l.allowances[assetID] = byOwner
	}
	bySpender, ok := byOwner[owner]
	if !ok {
		bySpender = make(map[common.Address]*uint256.Int)
		byOwner[owner] = bySpender
	}
	bySpender[spender] = v
}
