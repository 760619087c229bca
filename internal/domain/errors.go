package domain

import "errors"

// Ledger errors are precondition failures: an operation that returns one has
// made no state change.
var (
	ErrAlreadyPrepared       = errors.New("condition already prepared")
	ErrInvalidOutcomeCount   = errors.New("outcome slot count must be positive")
	ErrConditionNotPrepared  = errors.New("condition not prepared")
	ErrOutcomeCountMismatch  = errors.New("outcome slot count mismatch")
	ErrAlreadyResolved       = errors.New("condition already resolved")
	ErrPayoutAlreadySet      = errors.New("payout slot already set")
	ErrAllZeroPayout         = errors.New("payout vector sums to zero")
	ErrResultMalformed       = errors.New("malformed result payload")
	ErrResultNotReceived     = errors.New("result not received")
	ErrInsufficientBalance   = errors.New("insufficient position balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAmountOverflow        = errors.New("amount overflows the 256-bit word")
	ErrStaleApproval         = errors.New("allowance does not match expected value")
	ErrCollateralTransfer    = errors.New("collateral transfer failed")
	ErrTransferRejected      = errors.New("transfer rejected by receiver")
	ErrUnknownCollateral     = errors.New("unknown collateral token")
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrReadOnly     = errors.New("ledger is read-only in this mode")
	ErrLockHeld     = errors.New("lock already held")
	ErrContextDone  = errors.New("context cancelled")
)
