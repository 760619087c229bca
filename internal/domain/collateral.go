package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CollateralToken is the transferable-balance asset backing positions. Both
// calls are strict: any error aborts the ledger operation that made them.
// Transfer pays out of the ledger's custody account; the implementation is
// bound to that account at construction.
type CollateralToken interface {
	TransferFrom(ctx context.Context, payer, payee common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, payee common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
}

// CollateralResolver maps a collateral address to its asset. Resolution of an
// unregistered address returns ErrUnknownCollateral.
type CollateralResolver interface {
	Resolve(addr common.Address) (CollateralToken, error)
}

// CollateralAsset describes one registered collateral token.
type CollateralAsset struct {
	Address   common.Address
	Symbol    string
	Name      string
	Decimals  uint8
	CreatedAt time.Time
}

// CollateralHolding is one (asset, account) balance row.
type CollateralHolding struct {
	Asset     common.Address
	Account   common.Address
	Balance   *uint256.Int
	UpdatedAt time.Time
}

// TransferAck is the fixed acknowledgment constant a receiver returns to
// accept a safe transfer: the first four bytes of the Keccak-256 hash of
// "onERC1155Received(address,address,uint256,uint256,bytes)".
var TransferAck = [4]byte{0xf2, 0x3a, 0x6e, 0x61}

// TransferReceiver is implemented by contract-like recipients of safe
// transfers. Any return other than (TransferAck, nil) rejects the transfer.
// The callback runs while the ledger lock is held, so implementations must
// not call back into the ledger.
type TransferReceiver interface {
	OnTransferReceived(operator, from common.Address, assetID common.Hash, value *uint256.Int, data []byte) ([4]byte, error)
}
