package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Condition is an (oracle, question, outcome count) triple awaiting or
// holding a payout vector. The ID is the hash of the triple, so the same
// triple always names the same condition.
type Condition struct {
	ID                common.Hash
	Oracle            common.Address
	QuestionID        common.Hash
	OutcomeSlotCount  uint
	PayoutNumerators  []*uint256.Int
	PayoutDenominator *uint256.Int
	PreparedAt        time.Time
	ResolvedAt        *time.Time
}

// Resolved reports whether a payout vector has been recorded.
func (c Condition) Resolved() bool {
	return c.PayoutDenominator != nil && !c.PayoutDenominator.IsZero()
}
