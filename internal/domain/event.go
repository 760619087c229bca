package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// EventType names one kind of ledger event.
type EventType string

const (
	EventConditionPreparation EventType = "condition_preparation"
	EventConditionResolution  EventType = "condition_resolution"
	EventPositionSplit        EventType = "position_split"
	EventPositionMerge        EventType = "position_merge"
	EventPayoutRedemption     EventType = "payout_redemption"
	EventTransfer             EventType = "transfer"
	EventApproval             EventType = "approval"
)

// Event is one ledger event payload. Concrete payloads carry every parameter
// that identifies the operation, so the journal alone reconstructs the audit
// trail.
type Event interface {
	Type() EventType
}

// EventSink receives ledger events in commit order. Append runs while the
// ledger lock is held: implementations must not call back into the ledger
// and must not fail the emitting operation.
type EventSink interface {
	Append(seq uint64, at time.Time, ev Event)
}

// ConditionPreparation is emitted when a condition is registered.
type ConditionPreparation struct {
	ConditionID      common.Hash    `json:"condition_id"`
	Oracle           common.Address `json:"oracle"`
	QuestionID       common.Hash    `json:"question_id"`
	OutcomeSlotCount uint           `json:"outcome_slot_count"`
}

func (ConditionPreparation) Type() EventType { return EventConditionPreparation }

// ConditionResolution is emitted when an oracle report is accepted. Result
// holds the raw report bytes.
type ConditionResolution struct {
	ConditionID      common.Hash    `json:"condition_id"`
	Oracle           common.Address `json:"oracle"`
	QuestionID       common.Hash    `json:"question_id"`
	OutcomeSlotCount uint           `json:"outcome_slot_count"`
	Result           hexutil.Bytes  `json:"result"`
}

func (ConditionResolution) Type() EventType { return EventConditionResolution }

// PositionSplit is emitted when a basket is split into its outcome branches.
type PositionSplit struct {
	Account      common.Address `json:"account"`
	Collateral   common.Address `json:"collateral"`
	ParentSlotID common.Hash    `json:"parent_slot_id"`
	ConditionID  common.Hash    `json:"condition_id"`
	Amount       *uint256.Int   `json:"amount"`
}

func (PositionSplit) Type() EventType { return EventPositionSplit }

// PositionMerge is emitted when outcome branches are recombined.
type PositionMerge struct {
	Account      common.Address `json:"account"`
	Collateral   common.Address `json:"collateral"`
	ParentSlotID common.Hash    `json:"parent_slot_id"`
	ConditionID  common.Hash    `json:"condition_id"`
	Amount       *uint256.Int   `json:"amount"`
}

func (PositionMerge) Type() EventType { return EventPositionMerge }

// PayoutRedemption is emitted on every redeem call, including zero payouts.
type PayoutRedemption struct {
	Redeemer     common.Address `json:"redeemer"`
	Collateral   common.Address `json:"collateral"`
	ParentSlotID common.Hash    `json:"parent_slot_id"`
	ConditionID  common.Hash    `json:"condition_id"`
	Payout       *uint256.Int   `json:"payout"`
}

func (PayoutRedemption) Type() EventType { return EventPayoutRedemption }

// Transfer is emitted when an asset balance moves between accounts.
type Transfer struct {
	Operator common.Address `json:"operator"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	AssetID  common.Hash    `json:"asset_id"`
	Value    *uint256.Int   `json:"value"`
}

func (Transfer) Type() EventType { return EventTransfer }

// Approval is emitted when an allowance is set.
type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	AssetID common.Hash    `json:"asset_id"`
	Value   *uint256.Int   `json:"value"`
}

func (Approval) Type() EventType { return EventApproval }

// EventRecord is one row of the event journal.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
