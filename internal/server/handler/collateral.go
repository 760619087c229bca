package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// CollateralService defines the methods that the collateral handler requires
// from the service layer.
type CollateralService interface {
	Assets(ctx context.Context) ([]domain.CollateralAsset, error)
	Asset(ctx context.Context, addr common.Address) (domain.CollateralAsset, error)
	Holding(ctx context.Context, asset, account common.Address) (*uint256.Int, error)
	Mint(ctx context.Context, asset, account common.Address, amount *uint256.Int) error
}

// CollateralHandler serves collateral asset HTTP endpoints.
type CollateralHandler struct {
	collateral CollateralService
	logger     *slog.Logger
}

// NewCollateralHandler creates a CollateralHandler with the given service
// and logger.
func NewCollateralHandler(collateral CollateralService, logger *slog.Logger) *CollateralHandler {
	return &CollateralHandler{
		collateral: collateral,
		logger:     logger,
	}
}

// listAssetsResponse wraps the asset list output.
type listAssetsResponse struct {
	Assets []assetDTO `json:"assets"`
}

// ListAssets returns all registered collateral assets.
// GET /api/collateral
func (h *CollateralHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.collateral.Assets(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "list assets", err)
		return
	}

	out := make([]assetDTO, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetDTO(a))
	}
	writeJSON(w, http.StatusOK, listAssetsResponse{Assets: out})
}

// GetAsset returns one collateral asset by address.
// GET /api/collateral/{address}
func (h *CollateralHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := h.collateral.Asset(r.Context(), addr)
	if err != nil {
		respondServiceError(w, r, h.logger, "get asset", err)
		return
	}

	writeJSON(w, http.StatusOK, toAssetDTO(asset))
}

// GetHolding returns an account's collateral balance held outside positions.
// GET /api/collateral/{address}/holdings/{account}
func (h *CollateralHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.collateral.Holding(r.Context(), addr, account)
	if err != nil {
		respondServiceError(w, r, h.logger, "get holding", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   addr.Hex(),
		"account": account.Hex(),
		"balance": decimal(balance),
	})
}

type mintRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Mint credits collateral to an account. Only mounted when the faucet is
// enabled, and always behind the operator API key.
// POST /api/collateral/mint
func (h *CollateralHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.collateral.Mint(r.Context(), asset, account, amount); err != nil {
		respondServiceError(w, r, h.logger, "mint collateral", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   asset.Hex(),
		"account": account.Hex(),
		"amount":  amount.Dec(),
	})
}
