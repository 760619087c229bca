package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gogratta/pm-contracts/internal/crypto"
)

// AccessService defines the methods that the auth handler requires from the
// service layer.
type AccessService interface {
	Login(ctx context.Context, account common.Address, timestamp, nonce int64, signature string) (string, crypto.TokenClaims, error)
}

// AuthHandler serves session login.
type AuthHandler struct {
	access AccessService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the given service and logger.
func NewAuthHandler(access AccessService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		access: access,
		logger: logger,
	}
}

type loginRequest struct {
	Account   string `json:"account"`
	Timestamp int64  `json:"timestamp"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	ExpiresAt int64  `json:"expires_at"`
}

// Login verifies a signed auth message and mints a session token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	token, claims, err := h.access.Login(r.Context(), account, req.Timestamp, req.Nonce, req.Signature)
	if err != nil {
		respondServiceError(w, r, h.logger, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		Account:   claims.Account.Hex(),
		ExpiresAt: claims.ExpiresAt,
	})
}
