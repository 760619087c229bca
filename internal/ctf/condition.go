package ctf

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// payoutWordSize is the width of one payout numerator in a report payload.
const payoutWordSize = 32

// PrepareCondition registers an (oracle, question, outcome count) triple and
// reserves its derived id for later resolution. Preparing the same triple
// twice fails once payout slots exist for the id.
func (l *Ledger) PrepareCondition(oracle common.Address, questionID common.Hash, outcomeSlotCount uint) (common.Hash, error) {
	if outcomeSlotCount == 0 {
		return common.Hash{}, domain.ErrInvalidOutcomeCount
	}
	id := ConditionID(oracle, questionID, outcomeSlotCount)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.conditions[id]; ok {
		return common.Hash{}, domain.ErrAlreadyPrepared
	}

	st := &conditionState{
		oracle:           oracle,
		questionID:       questionID,
		outcomeSlotCount: outcomeSlotCount,
		numerators:       make([]*uint256.Int, outcomeSlotCount),
		denominator:      new(uint256.Int),
		preparedAt:       l.now(),
	}
	for i := range st.numerators {
		st.numerators[i] = new(uint256.Int)
	}
	l.conditions[id] = st

	l.emit(domain.ConditionPreparation{
		ConditionID:      id,
		Oracle:           oracle,
		QuestionID:       questionID,
		OutcomeSlotCount: outcomeSlotCount,
	})
	return id, nil
}

// ReportPayouts records the payout vector for the condition the reporter
// owns. The reporter's identity is bound into the condition id, so a report
// from anyone but the prepared oracle derives an unknown id and fails. Each
// 32-byte big-endian word of result is one payout numerator; the vector is
// written once, whole, and only when its sum is positive.
func (l *Ledger) ReportPayouts(reporter common.Address, questionID common.Hash, result []byte) (common.Hash, error) {
	if len(result) == 0 || len(result)%payoutWordSize != 0 {
		return common.Hash{}, domain.ErrResultMalformed
	}
	outcomeSlotCount := uint(len(result) / payoutWordSize)
	id := ConditionID(reporter, questionID, outcomeSlotCount)

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.conditions[id]
	if !ok || st.outcomeSlotCount != outcomeSlotCount {
		return common.Hash{}, domain.ErrOutcomeCountMismatch
	}
	if st.resolved() {
		return common.Hash{}, domain.ErrAlreadyResolved
	}

	numerators := make([]*uint256.Int, outcomeSlotCount)
	denominator := new(uint256.Int)
	for i := uint(0); i < outcomeSlotCount; i++ {
		if !st.numerators[i].IsZero() {
			return common.Hash{}, domain.ErrPayoutAlreadySet
		}
		n := new(uint256.Int).SetBytes(result[i*payoutWordSize : (i+1)*payoutWordSize])
		numerators[i] = n
		if _, overflow := denominator.AddOverflow(denominator, n); overflow {
			return common.Hash{}, domain.ErrAmountOverflow
		}
	}
	if denominator.IsZero() {
		return common.Hash{}, domain.ErrAllZeroPayout
	}

	st.numerators = numerators
	st.denominator = denominator
	st.result = append([]byte(nil), result...)
	at := l.now()
	st.resolvedAt = &at

	l.emit(domain.ConditionResolution{
		ConditionID:      id,
		Oracle:           reporter,
		QuestionID:       questionID,
		OutcomeSlotCount: outcomeSlotCount,
		Result:           append([]byte(nil), result...),
	})
	return id, nil
}
