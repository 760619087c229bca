package ctf

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// TransferFrom moves value units of an asset from one account to another.
// When the operator is not the owner, the move consumes the operator's
// allowance on that asset first.
func (l *Ledger) TransferFrom(operator, from, to common.Address, assetID common.Hash, value *uint256.Int) error {
	v := new(uint256.Int).Set(value)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.transferLocked(operator, from, to, assetID, v); err != nil {
		return err
	}

	l.emit(domain.Transfer{
		Operator: operator,
		From:     from,
		To:       to,
		AssetID:  assetID,
		Value:    v,
	})
	return nil
}

// SafeTransferFrom behaves like TransferFrom, but a recipient registered as
// contract-like must acknowledge the transfer through its receiver callback.
// A missing or wrong acknowledgment rolls the whole move back.
func (l *Ledger) SafeTransferFrom(operator, from, to common.Address, assetID common.Hash, value *uint256.Int, data []byte) error {
	v := new(uint256.Int).Set(value)

	l.mu.Lock()
	defer l.mu.Unlock()

	rollback, err := l.transferLocked(operator, from, to, assetID, v)
	if err != nil {
		return err
	}

	if r, ok := l.receivers[to]; ok {
		ack, err := r.OnTransferReceived(operator, from, assetID, new(uint256.Int).Set(v), data)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %v", domain.ErrTransferRejected, err)
		}
		if ack != domain.TransferAck {
			rollback()
			return domain.ErrTransferRejected
		}
	}

	l.emit(domain.Transfer{
		Operator: operator,
		From:     from,
		To:       to,
		AssetID:  assetID,
		Value:    v,
	})
	return nil
}

// Approve sets the spender's allowance on one of the owner's assets. Unless
// the new value is zero, the live allowance must still equal currentValue,
// closing the race where a spender drains the old allowance between the
// owner's read and write.
func (l *Ledger) Approve(owner, spender common.Address, assetID common.Hash, currentValue, newValue *uint256.Int) error {
	cur := new(uint256.Int).Set(currentValue)
	next := new(uint256.Int).Set(newValue)

	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.allowance(assetID, owner, spender)
	if !next.IsZero() && !live.Eq(cur) {
		return domain.ErrStaleApproval
	}
	l.setAllowance(assetID, owner, spender, next)

	l.emit(domain.Approval{
		Owner:   owner,
		Spender: spender,
		AssetID: assetID,
		Value:   new(uint256.Int).Set(next),
	})
	return nil
}

// transferLocked validates the allowance and balance preconditions, then
// applies the move. The returned rollback restores the exact prior state.
// Callers hold the mutex.
func (l *Ledger) transferLocked(operator, from, to common.Address, assetID common.Hash, value *uint256.Int) (rollback func(), err error) {
	var prevAllowance *uint256.Int
	if operator != from {
		al := l.allowance(assetID, from, operator)
		if al.Lt(value) {
			return nil, domain.ErrInsufficientAllowance
		}
		prevAllowance = new(uint256.Int).Set(al)
	}

	prevFrom := new(uint256.Int).Set(l.balance(assetID, from))
	if prevFrom.Lt(value) {
		return nil, domain.ErrInsufficientBalance
	}
	prevTo := new(uint256.Int).Set(l.balance(assetID, to))
	// A self-transfer nets to zero on the key, so only a real move can
	// overflow the recipient.
	if from != to {
		if _, overflow := new(uint256.Int).AddOverflow(prevTo, value); overflow {
			return nil, domain.ErrAmountOverflow
		}
	}

	if prevAllowance != nil {
		l.setAllowance(assetID, from, operator, new(uint256.Int).Sub(prevAllowance, value))
	}
	l.setBalance(assetID, from, new(uint256.Int).Sub(prevFrom, value))
	l.credit(assetID, to, value)

	return func() {
		l.setBalance(assetID, from, prevFrom)
		l.setBalance(assetID, to, prevTo)
		if prevAllowance != nil {
			l.setAllowance(assetID, from, operator, prevAllowance)
		}
	}, nil
}
