package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionBalance is one (position, holder) row of the ledger.
type PositionBalance struct {
	PositionID common.Hash
	Account    common.Address
	Balance    *uint256.Int
	UpdatedAt  time.Time
}

// Allowance is a spender's remaining budget to move an owner's balance of
// one asset id. Asset ids share the position key space.
type Allowance struct {
	AssetID   common.Hash
	Owner     common.Address
	Spender   common.Address
	Value     *uint256.Int
	UpdatedAt time.Time
}
