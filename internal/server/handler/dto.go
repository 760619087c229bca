package handler

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// API representations. Hashes and addresses travel as 0x-hex strings,
// amounts as decimal strings so clients never round 256-bit values through
// floating point.

type conditionDTO struct {
	ID                string     `json:"id"`
	Oracle            string     `json:"oracle"`
	QuestionID        string     `json:"question_id"`
	OutcomeSlotCount  uint       `json:"outcome_slot_count"`
	Resolved          bool       `json:"resolved"`
	PayoutNumerators  []string   `json:"payout_numerators,omitempty"`
	PayoutDenominator string     `json:"payout_denominator,omitempty"`
	PreparedAt        time.Time  `json:"prepared_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

func toConditionDTO(c domain.Condition) conditionDTO {
	dto := conditionDTO{
		ID:               c.ID.Hex(),
		Oracle:           c.Oracle.Hex(),
		QuestionID:       c.QuestionID.Hex(),
		OutcomeSlotCount: c.OutcomeSlotCount,
		Resolved:         c.Resolved(),
		PreparedAt:       c.PreparedAt,
		ResolvedAt:       c.ResolvedAt,
	}
	if c.Resolved() {
		dto.PayoutNumerators = decimals(c.PayoutNumerators)
		dto.PayoutDenominator = c.PayoutDenominator.Dec()
	}
	return dto
}

func toConditionDTOs(conditions []domain.Condition) []conditionDTO {
	out := make([]conditionDTO, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, toConditionDTO(c))
	}
	return out
}

type balanceDTO struct {
	PositionID string    `json:"position_id"`
	Account    string    `json:"account"`
	Balance    string    `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toBalanceDTO(b domain.PositionBalance) balanceDTO {
	return balanceDTO{
		PositionID: b.PositionID.Hex(),
		Account:    b.Account.Hex(),
		Balance:    decimal(b.Balance),
		UpdatedAt:  b.UpdatedAt,
	}
}

func toBalanceDTOs(balances []domain.PositionBalance) []balanceDTO {
	out := make([]balanceDTO, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalanceDTO(b))
	}
	return out
}

type assetDTO struct {
	Address   string    `json:"address"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Decimals  uint8     `json:"decimals"`
	CreatedAt time.Time `json:"created_at"`
}

func toAssetDTO(a domain.CollateralAsset) assetDTO {
	return assetDTO{
		Address:   a.Address.Hex(),
		Symbol:    a.Symbol,
		Name:      a.Name,
		Decimals:  a.Decimals,
		CreatedAt: a.CreatedAt,
	}
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func decimals(vs []*uint256.Int) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, decimal(v))
	}
	return out
}
