package ctf

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// RootSlot is the sentinel slot id naming raw collateral. Positions keyed on
// it hold the collateral asset itself rather than a conditional basket.
var RootSlot = common.Hash{}

// ConditionID derives the identifier of an (oracle, question, outcome count)
// triple: keccak256 over the packed 20-byte oracle address, the 32-byte
// question id, and the count as a 32-byte big-endian word.
func ConditionID(oracle common.Address, questionID common.Hash, outcomeSlotCount uint) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		oracle.Bytes(),
		questionID.Bytes(),
		uintTo32Bytes(outcomeSlotCount),
	))
}

// PayoutSlotID derives the slot id of one outcome branch under a parent slot.
// The hash of (conditionID, index) is added to the parent as a 256-bit word
// with wrap-around; distinct derivation paths only collide when composition
// makes them numerically equal on purpose.
func PayoutSlotID(parent common.Hash, conditionID common.Hash, index uint) common.Hash {
	branch := new(uint256.Int).SetBytes(ethcrypto.Keccak256(
		conditionID.Bytes(),
		uintTo32Bytes(index),
	))
	slot := new(uint256.Int).SetBytes(parent.Bytes())
	slot.Add(slot, branch)
	return common.Hash(slot.Bytes32())
}

// PositionID derives the balance key for a collateral asset at a slot:
// keccak256 over the packed 20-byte collateral address and the 32-byte slot.
func PositionID(collateral common.Address, slotID common.Hash) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		collateral.Bytes(),
		slotID.Bytes(),
	))
}

// OutcomeStep selects one outcome of one condition when deriving a nested
// slot id.
type OutcomeStep struct {
	ConditionID common.Hash
	Index       uint
}

// DeriveSlotID folds a sequence of outcome steps onto a parent slot,
// yielding the slot id of an arbitrarily nested basket.
func DeriveSlotID(parent common.Hash, steps []OutcomeStep) common.Hash {
	id := parent
	for _, s := range steps {
		id = PayoutSlotID(id, s.ConditionID, s.Index)
	}
	return id
}

func uintTo32Bytes(n uint) []byte {
	word := uint256.NewInt(uint64(n)).Bytes32()
	return word[:]
}
