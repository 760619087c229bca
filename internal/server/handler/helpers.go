package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serviceErrorStatus maps ledger domain errors onto HTTP status codes.
// Conflicts with already-recorded state map to 409, requests the ledger
// cannot act on to 422. Unmapped errors report ok=false and should surface
// as a logged 500.
func serviceErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, true
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, true
	case errors.Is(err, domain.ErrReadOnly):
		return http.StatusForbidden, true
	case errors.Is(err, domain.ErrAlreadyPrepared),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrPayoutAlreadySet),
		errors.Is(err, domain.ErrStaleApproval),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrInvalidOutcomeCount),
		errors.Is(err, domain.ErrOutcomeCountMismatch),
		errors.Is(err, domain.ErrResultMalformed),
		errors.Is(err, domain.ErrAllZeroPayout),
		errors.Is(err, domain.ErrConditionNotPrepared),
		errors.Is(err, domain.ErrResultNotReceived),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.Is(err, domain.ErrCollateralTransfer),
		errors.Is(err, domain.ErrTransferRejected),
		errors.Is(err, domain.ErrUnknownCollateral):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// respondServiceError writes the mapped error response, or logs and writes a
// generic 500 when the error is not a known ledger error.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	if status, ok := serviceErrorStatus(err); ok {
		writeError(w, status, err.Error())
		return
	}
	logger.ErrorContext(r.Context(), "handler: "+action+" failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+action)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseAddress parses a 0x-prefixed 20-byte hex address.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s must be a 0x-prefixed 20-byte hex address", field)
	}
	return common.HexToAddress(s), nil
}

// parseHash parses a 0x-prefixed 32-byte hex hash.
func parseHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s must be a 0x-prefixed 32-byte hex value", field)
	}
	return common.BytesToHash(b), nil
}

// parseAmount parses a non-negative decimal amount into a 256-bit word.
func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a decimal integer in [0, 2^256)", field)
	}
	return v, nil
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
