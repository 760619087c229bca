package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gogratta/pm-contracts/internal/crypto"
	"github.com/gogratta/pm-contracts/internal/domain"
)

// AccessService authenticates API callers. Accounts log in by signing a
// LedgerAuth message with their own key and receive an HMAC session token;
// operator tooling authenticates with static API keys.
type AccessService struct {
	chainID  int
	sessions *crypto.SessionAuth
	maxSkew  time.Duration
	apiKeys  []string
	locks    domain.LockManager
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAccessService creates an AccessService with all required dependencies.
func NewAccessService(
	chainID int,
	sessions *crypto.SessionAuth,
	maxSkew time.Duration,
	apiKeys []string,
	locks domain.LockManager,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		chainID:  chainID,
		sessions: sessions,
		maxSkew:  maxSkew,
		apiKeys:  apiKeys,
		locks:    locks,
		audit:    audit,
		logger:   logger,
	}
}

// Login verifies a signed LedgerAuth message and mints a session token for
// the account. The timestamp must fall within the allowed clock skew and the
// (account, nonce) pair must not have been used inside that window.
func (s *AccessService) Login(ctx context.Context, account common.Address, timestamp, nonce int64, signature string) (string, crypto.TokenClaims, error) {
	now := time.Now().UTC()

	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(s.maxSkew.Seconds()) {
		return "", crypto.TokenClaims{}, fmt.Errorf("access_service: timestamp outside allowed skew: %w", domain.ErrUnauthorized)
	}

	recovered, err := crypto.RecoverAuthSigner(s.chainID, account, timestamp, nonce, signature)
	if err != nil {
		return "", crypto.TokenClaims{}, fmt.Errorf("access_service: %v: %w", err, domain.ErrUnauthorized)
	}
	if recovered != account {
		return "", crypto.TokenClaims{}, fmt.Errorf("access_service: signer mismatch: %w", domain.ErrUnauthorized)
	}

	// The acquired marker is never released; it expires with the skew
	// window, after which the timestamp check rejects the message anyway.
	nonceKey := fmt.Sprintf("authnonce:%s:%d", account.Hex(), nonce)
	if _, err := s.locks.Acquire(ctx, nonceKey, 2*s.maxSkew); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return "", crypto.TokenClaims{}, fmt.Errorf("access_service: nonce already used: %w", domain.ErrUnauthorized)
		}
		return "", crypto.TokenClaims{}, fmt.Errorf("access_service: nonce check: %w", err)
	}

	token, claims, err := s.sessions.MintToken(account, now)
	if err != nil {
		return "", crypto.TokenClaims{}, fmt.Errorf("access_service: mint token: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "login", map[string]any{
		"account":    account.Hex(),
		"expires_at": claims.ExpiresAt,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "access_service: audit log failed",
			slog.String("account", account.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "access_service: session issued",
		slog.String("account", account.Hex()),
		slog.Int64("expires_at", claims.ExpiresAt),
	)

	return token, claims, nil
}

// Authenticate validates a session token and returns its claims.
func (s *AccessService) Authenticate(token string) (crypto.TokenClaims, error) {
	claims, err := s.sessions.VerifyToken(token, time.Now().UTC())
	if err != nil {
		return crypto.TokenClaims{}, fmt.Errorf("access_service: %v: %w", err, domain.ErrUnauthorized)
	}
	return claims, nil
}

// CheckAPIKey reports whether the presented key matches a configured one.
// Comparison is constant-time per candidate.
func (s *AccessService) CheckAPIKey(key string) bool {
	if key == "" {
		return false
	}
	for _, candidate := range s.apiKeys {
		if len(candidate) == len(key) && subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}
