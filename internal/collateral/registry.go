package collateral

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// Registry maps collateral addresses to their assets. The ledger resolves
// every root split, merge, and redemption through it.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

var _ domain.CollateralResolver = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]*Token)}
}

// Register adds a token under its metadata address, replacing any previous
// registration.
func (r *Registry) Register(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Meta().Address] = t
}

// Resolve returns the asset registered at the address.
func (r *Registry) Resolve(addr common.Address) (domain.CollateralToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	if !ok {
		return nil, domain.ErrUnknownCollateral
	}
	return t, nil
}

// Get returns the concrete token at the address.
func (r *Registry) Get(addr common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// List returns the metadata of every registered asset.
func (r *Registry) List() []domain.CollateralAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]domain.CollateralAsset, 0, len(r.tokens))
	for _, t := range r.tokens {
		assets = append(assets, t.Meta())
	}
	return assets
}
