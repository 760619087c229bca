package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/server/middleware"
)

// TransferService defines the methods that the transfer handler requires
// from the service layer.
type TransferService interface {
	Transfer(ctx context.Context, operator, from, to common.Address, assetID common.Hash, value *uint256.Int) error
	SafeTransfer(ctx context.Context, operator, from, to common.Address, assetID common.Hash, value *uint256.Int, data []byte) error
	Approve(ctx context.Context, owner, spender common.Address, assetID common.Hash, currentValue, newValue *uint256.Int) error
	Allowance(ctx context.Context, assetID common.Hash, owner, spender common.Address) (*uint256.Int, error)
}

// TransferHandler serves transfer and approval HTTP endpoints.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given service and
// logger.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

// transferRequest describes a position transfer. The session account acts
// as operator; it may move its own balance or spend an allowance granted by
// from. Safe transfers consult the recipient's registered receiver and pass
// data through to it.
type transferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	AssetID string `json:"asset_id"`
	Value   string `json:"value"`
	Safe    bool   `json:"safe,omitempty"`
	Data    string `json:"data,omitempty"`
}

type transferResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	AssetID string `json:"asset_id"`
	Value   string `json:"value"`
}

// Transfer moves position value between accounts.
// POST /api/transfers
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	operator, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assetID, err := parseHash("asset_id", req.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Safe {
		var data []byte
		if req.Data != "" {
			if data, err = hexutil.Decode(req.Data); err != nil {
				writeError(w, http.StatusBadRequest, "data must be 0x-prefixed hex")
				return
			}
		}
		err = h.transfers.SafeTransfer(r.Context(), operator, from, to, assetID, value, data)
	} else {
		err = h.transfers.Transfer(r.Context(), operator, from, to, assetID, value)
	}
	if err != nil {
		respondServiceError(w, r, h.logger, "transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, transferResponse{
		From:    from.Hex(),
		To:      to.Hex(),
		AssetID: assetID.Hex(),
		Value:   value.Dec(),
	})
}

// approveRequest sets a spender allowance. current_value must match the
// stored allowance unless new_value is zero, which always clears it.
type approveRequest struct {
	Spender      string `json:"spender"`
	AssetID      string `json:"asset_id"`
	CurrentValue string `json:"current_value"`
	NewValue     string `json:"new_value"`
}

type approveResponse struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	AssetID string `json:"asset_id"`
	Value   string `json:"value"`
}

// Approve sets the allowance the session account grants a spender.
// POST /api/approvals
func (h *TransferHandler) Approve(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assetID, err := parseHash("asset_id", req.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	currentValue, err := parseAmount("current_value", req.CurrentValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newValue, err := parseAmount("new_value", req.NewValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.transfers.Approve(r.Context(), owner, spender, assetID, currentValue, newValue); err != nil {
		respondServiceError(w, r, h.logger, "approve", err)
		return
	}

	writeJSON(w, http.StatusOK, approveResponse{
		Owner:   owner.Hex(),
		Spender: spender.Hex(),
		AssetID: assetID.Hex(),
		Value:   newValue.Dec(),
	})
}

// GetAllowance returns the allowance an owner has granted a spender for one
// asset. Unset allowances read as zero.
// GET /api/allowances?asset_id=0x...&owner=0x...&spender=0x...
func (h *TransferHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	assetID, err := parseHash("asset_id", q.Get("asset_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress("owner", q.Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := parseAddress("spender", q.Get("spender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowance, err := h.transfers.Allowance(r.Context(), assetID, owner, spender)
	if err != nil {
		respondServiceError(w, r, h.logger, "get allowance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"asset_id":  assetID.Hex(),
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": decimal(allowance),
	})
}
