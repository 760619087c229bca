package ctf

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// SplitPosition converts amount units of the parent basket into amount units
// of every outcome branch of the condition. When parent is the root slot the
// collateral is pulled from the caller into custody; otherwise the caller's
// parent position is debited. Collateral is conserved: the branch credits
// are fully backed by the single debit.
func (l *Ledger) SplitPosition(ctx context.Context, caller, collateral common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) error {
	amt := new(uint256.Int).Set(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrConditionNotPrepared
	}

	keys := make([]common.Hash, st.outcomeSlotCount)
	for i := range keys {
		keys[i] = PositionID(collateral, PayoutSlotID(parentSlotID, conditionID, uint(i)))
		if err := l.checkCredit(keys[i], caller, amt); err != nil {
			return err
		}
	}

	if parentSlotID == RootSlot {
		token, err := l.collateral.Resolve(collateral)
		if err != nil {
			return err
		}
		if err := token.TransferFrom(ctx, caller, l.custody, amt); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCollateralTransfer, err)
		}
	} else {
		parentKey := PositionID(collateral, parentSlotID)
		if err := l.debit(parentKey, caller, amt); err != nil {
			return err
		}
	}

	for _, key := range keys {
		l.credit(key, caller, amt)
	}

	l.emit(domain.PositionSplit{
		Account:      caller,
		Collateral:   collateral,
		ParentSlotID: parentSlotID,
		ConditionID:  conditionID,
		Amount:       amt,
	})
	return nil
}

// MergePosition is the exact inverse of SplitPosition: it debits amount from
// every outcome branch and returns amount to the parent basket, or to the
// caller as collateral when parent is the root slot. All branch debits are
// validated before any mutation; a short branch aborts the whole merge.
func (l *Ledger) MergePosition(ctx context.Context, caller, collateral common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) error {
	amt := new(uint256.Int).Set(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.conditions[conditionID]
	if !ok {
		return domain.ErrConditionNotPrepared
	}

	keys := make([]common.Hash, st.outcomeSlotCount)
	for i := uint(0); i < st.outcomeSlotCount; i++ {
		keys[i] = PositionID(collateral, PayoutSlotID(parentSlotID, conditionID, i))
		if l.balance(keys[i], caller).Lt(amt) {
			return domain.ErrInsufficientBalance
		}
	}
	var parentKey common.Hash
	if parentSlotID != RootSlot {
		parentKey = PositionID(collateral, parentSlotID)
		if err := l.checkCredit(parentKey, caller, amt); err != nil {
			return err
		}
	}

	if parentSlotID == RootSlot {
		token, err := l.collateral.Resolve(collateral)
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx, caller, amt); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCollateralTransfer, err)
		}
	}

	for _, key := range keys {
		if err := l.debit(key, caller, amt); err != nil {
			return err
		}
	}
	if parentSlotID != RootSlot {
		l.credit(parentKey, caller, amt)
	}

	l.emit(domain.PositionMerge{
		Account:      caller,
		Collateral:   collateral,
		ParentSlotID: parentSlotID,
		ConditionID:  conditionID,
		Amount:       amt,
	})
	return nil
}

// RedeemPayout converts the caller's outcome-branch balances under a
// resolved condition into their proportional payout, truncating each share
// to the word; the truncation remainder stays unredeemed. Redeemed branches
// are zeroed, so a second call pays zero. The redemption event is emitted
// even when the payout is zero.
func (l *Ledger) RedeemPayout(ctx context.Context, caller, collateral common.Address, parentSlotID, conditionID common.Hash) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.conditions[conditionID]
	if !ok {
		return nil, domain.ErrConditionNotPrepared
	}
	if !st.resolved() {
		return nil, domain.ErrResultNotReceived
	}

	total := new(uint256.Int)
	var redeemed []common.Hash
	for i := uint(0); i < st.outcomeSlotCount; i++ {
		key := PositionID(collateral, PayoutSlotID(parentSlotID, conditionID, i))
		held := l.balance(key, caller)
		if held.IsZero() {
			continue
		}
		share, overflow := new(uint256.Int).MulOverflow(held, st.numerators[i])
		if overflow {
			return nil, domain.ErrAmountOverflow
		}
		share.Div(share, st.denominator)
		if _, overflow := total.AddOverflow(total, share); overflow {
			return nil, domain.ErrAmountOverflow
		}
		redeemed = append(redeemed, key)
	}

	var parentKey common.Hash
	if !total.IsZero() && parentSlotID != RootSlot {
		parentKey = PositionID(collateral, parentSlotID)
		if err := l.checkCredit(parentKey, caller, total); err != nil {
			return nil, err
		}
	}

	if !total.IsZero() && parentSlotID == RootSlot {
		token, err := l.collateral.Resolve(collateral)
		if err != nil {
			return nil, err
		}
		if err := token.Transfer(ctx, caller, total); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCollateralTransfer, err)
		}
	}

	for _, key := range redeemed {
		l.setBalance(key, caller, new(uint256.Int))
	}
	if !total.IsZero() && parentSlotID != RootSlot {
		l.credit(parentKey, caller, total)
	}

	l.emit(domain.PayoutRedemption{
		Redeemer:     caller,
		Collateral:   collateral,
		ParentSlotID: parentSlotID,
		ConditionID:  conditionID,
		Payout:       new(uint256.Int).Set(total),
	})
	return total, nil
}
