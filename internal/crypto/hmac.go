package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// sessionTokenPrefix versions the wire format of session tokens.
const sessionTokenPrefix = "v1"

// TokenClaims is the payload carried inside a session token.
type TokenClaims struct {
	Account   common.Address `json:"account"`
	IssuedAt  int64          `json:"iat"`
	ExpiresAt int64          `json:"exp"`
}

// SessionAuth mints and verifies HMAC-SHA256 signed session tokens. A token
// is "v1.<base64url payload>.<base64url signature>"; the payload is the JSON
// claims and the signature covers the payload bytes.
type SessionAuth struct {
	Secret string
	TTL    time.Duration
}

// MintToken issues a token binding the account until now+TTL.
func (a *SessionAuth) MintToken(account common.Address, now time.Time) (string, TokenClaims, error) {
	claims := TokenClaims{
		Account:   account,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(a.TTL).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", TokenClaims{}, fmt.Errorf("crypto/session: encoding claims: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	sig := hmacSHA256(a.Secret, payload)
	token := sessionTokenPrefix + "." + body + "." + base64.RawURLEncoding.EncodeToString(sig)
	return token, claims, nil
}

// VerifyToken checks the token's signature and expiry and returns its
// claims.
func (a *SessionAuth) VerifyToken(token string, now time.Time) (TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != sessionTokenPrefix {
		return TokenClaims{}, fmt.Errorf("crypto/session: malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return TokenClaims{}, fmt.Errorf("crypto/session: decoding payload: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return TokenClaims{}, fmt.Errorf("crypto/session: decoding signature: %w", err)
	}

	if !hmac.Equal(sig, hmacSHA256(a.Secret, payload)) {
		return TokenClaims{}, fmt.Errorf("crypto/session: signature mismatch")
	}

	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return TokenClaims{}, fmt.Errorf("crypto/session: decoding claims: %w", err)
	}
	if now.Unix() >= claims.ExpiresAt {
		return TokenClaims{}, fmt.Errorf("crypto/session: token expired")
	}
	return claims, nil
}

// hmacSHA256 computes HMAC-SHA256 of the message using the secret.
func hmacSHA256(secret string, message []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return mac.Sum(nil)
}

// String returns a redacted representation suitable for logging.
func (a *SessionAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("SessionAuth{secret=%s, ttl=%s}", redact(a.Secret), a.TTL)
}
