package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/server/middleware"
)

// PositionService defines the methods that the position handler requires
// from the service layer.
type PositionService interface {
	Split(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) ([]domain.PositionBalance, error)
	Merge(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) ([]domain.PositionBalance, error)
	Redeem(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash) (*uint256.Int, []domain.PositionBalance, error)
	BalanceOf(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error)
	ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.PositionBalance, error)
	ComputeIDs(collateralAddr common.Address, parentSlotID, conditionID common.Hash, index uint) (common.Hash, common.Hash)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionOpRequest is shared by split, merge and redeem. An empty
// parent_slot_id targets the root slot, i.e. the collateral itself.
type positionOpRequest struct {
	Collateral   string `json:"collateral"`
	ParentSlotID string `json:"parent_slot_id,omitempty"`
	ConditionID  string `json:"condition_id"`
	Amount       string `json:"amount,omitempty"`
}

func (req *positionOpRequest) parse(withAmount bool) (common.Address, common.Hash, common.Hash, *uint256.Int, error) {
	collateralAddr, err := parseAddress("collateral", req.Collateral)
	if err != nil {
		return common.Address{}, common.Hash{}, common.Hash{}, nil, err
	}

	parentSlotID := common.Hash{}
	if req.ParentSlotID != "" {
		if parentSlotID, err = parseHash("parent_slot_id", req.ParentSlotID); err != nil {
			return common.Address{}, common.Hash{}, common.Hash{}, nil, err
		}
	}

	conditionID, err := parseHash("condition_id", req.ConditionID)
	if err != nil {
		return common.Address{}, common.Hash{}, common.Hash{}, nil, err
	}

	var amount *uint256.Int
	if withAmount {
		if amount, err = parseAmount("amount", req.Amount); err != nil {
			return common.Address{}, common.Hash{}, common.Hash{}, nil, err
		}
	}

	return collateralAddr, parentSlotID, conditionID, amount, nil
}

type positionOpResponse struct {
	Balances []balanceDTO `json:"balances"`
}

// SplitPosition moves value from a parent position into its outcome
// branches. The session account funds the split.
// POST /api/positions/split
func (h *PositionHandler) SplitPosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req positionOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	collateralAddr, parentSlotID, conditionID, amount, err := req.parse(true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balances, err := h.positions.Split(r.Context(), caller, collateralAddr, parentSlotID, conditionID, amount)
	if err != nil {
		respondServiceError(w, r, h.logger, "split position", err)
		return
	}

	writeJSON(w, http.StatusOK, positionOpResponse{Balances: toBalanceDTOs(balances)})
}

// MergePosition recombines a full outcome set back into the parent position.
// POST /api/positions/merge
func (h *PositionHandler) MergePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req positionOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	collateralAddr, parentSlotID, conditionID, amount, err := req.parse(true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balances, err := h.positions.Merge(r.Context(), caller, collateralAddr, parentSlotID, conditionID, amount)
	if err != nil {
		respondServiceError(w, r, h.logger, "merge position", err)
		return
	}

	writeJSON(w, http.StatusOK, positionOpResponse{Balances: toBalanceDTOs(balances)})
}

type redeemResponse struct {
	Payout   string       `json:"payout"`
	Balances []balanceDTO `json:"balances"`
}

// RedeemPayout cashes the session account's branch positions of a resolved
// condition back into the parent position.
// POST /api/positions/redeem
func (h *PositionHandler) RedeemPayout(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req positionOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	collateralAddr, parentSlotID, conditionID, _, err := req.parse(false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payout, balances, err := h.positions.Redeem(r.Context(), caller, collateralAddr, parentSlotID, conditionID)
	if err != nil {
		respondServiceError(w, r, h.logger, "redeem payout", err)
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Payout:   decimal(payout),
		Balances: toBalanceDTOs(balances),
	})
}

// GetBalance returns one account's balance at a position key.
// GET /api/positions/{id}/balances/{account}
func (h *PositionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	positionID, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.positions.BalanceOf(r.Context(), positionID, account)
	if err != nil {
		respondServiceError(w, r, h.logger, "get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"position_id": positionID.Hex(),
		"account":     account.Hex(),
		"balance":     decimal(balance),
	})
}

// listPositionsResponse wraps the list endpoint output with paging metadata.
type listPositionsResponse struct {
	Positions []balanceDTO `json:"positions"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
}

// ListPositions returns an account's non-zero position balances.
// GET /api/positions?account=0x...&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := parseListOpts(r)

	balances, err := h.positions.ListByAccount(r.Context(), account, opts)
	if err != nil {
		respondServiceError(w, r, h.logger, "list positions", err)
		return
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: toBalanceDTOs(balances),
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// ComputePositionID derives the slot and position keys for an outcome index
// without touching state.
// GET /api/positions/compute?collateral=0x...&parent_slot_id=0x...&condition_id=0x...&index=0
func (h *PositionHandler) ComputePositionID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	collateralAddr, err := parseAddress("collateral", q.Get("collateral"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parentSlotID := common.Hash{}
	if raw := q.Get("parent_slot_id"); raw != "" {
		if parentSlotID, err = parseHash("parent_slot_id", raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conditionID, err := parseHash("condition_id", q.Get("condition_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	index, err := strconv.ParseUint(q.Get("index"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}

	slotID, positionID := h.positions.ComputeIDs(collateralAddr, parentSlotID, conditionID, uint(index))
	writeJSON(w, http.StatusOK, map[string]string{
		"slot_id":     slotID.Hex(),
		"position_id": positionID.Hex(),
	})
}
