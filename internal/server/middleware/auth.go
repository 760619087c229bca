package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gogratta/pm-contracts/internal/crypto"
)

// SessionVerifier validates a session token and returns its claims.
type SessionVerifier interface {
	Authenticate(token string) (crypto.TokenClaims, error)
}

// KeyChecker reports whether an operator API key is valid.
type KeyChecker interface {
	CheckAPIKey(key string) bool
}

type contextKey string

// accountKey carries the authenticated account through the request context.
const accountKey contextKey = "account"

// Session returns middleware that requires a valid session token in the
// Authorization header (Bearer scheme). The authenticated account is stored
// in the request context for handlers to read via AccountFrom.
func Session(sessions SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing session token")
				return
			}

			claims, err := sessions.Authenticate(token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired session token")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, claims.Account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKey returns middleware that requires a valid operator key in the
// Authorization header (Bearer scheme) or the X-API-Key header.
func APIKey(keys KeyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractToken(r)
			if key == "" {
				writeUnauthorized(w, "missing API key")
				return
			}
			if !keys.CheckAPIKey(key) {
				writeUnauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFrom returns the authenticated account stored by Session.
func AccountFrom(ctx context.Context) (common.Address, bool) {
	account, ok := ctx.Value(accountKey).(common.Address)
	return account, ok
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	// Check Authorization: Bearer <token>
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Check X-API-Key header.
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
