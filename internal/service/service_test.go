package service_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/service"
)

var (
	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
	oracle  = common.HexToAddress("0x04ac1e")
	custody = common.HexToAddress("0xcafe")
	usdc    = common.HexToAddress("0x05dc")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func u(n uint64) *uint256.Int {
	return uint256.NewInt(n)
}

func question(s string) common.Hash {
	return ethcrypto.Keccak256Hash([]byte(s))
}

// payoutResult packs numerators as consecutive 32-byte big-endian words.
func payoutResult(nums ...uint64) []byte {
	out := make([]byte, 0, 32*len(nums))
	for _, n := range nums {
		word := uint256.NewInt(n).Bytes32()
		out = append(out, word[:]...)
	}
	return out
}

// --------------------------------------------------------------------------
// In-memory doubles for the store, cache, and bus interfaces.
// --------------------------------------------------------------------------

func balKey(positionID common.Hash, account common.Address) string {
	return positionID.Hex() + "/" + account.Hex()
}

func allowKey(assetID common.Hash, owner, spender common.Address) string {
	return assetID.Hex() + "/" + owner.Hex() + "/" + spender.Hex()
}

type memConditionStore struct {
	rows       map[common.Hash]domain.Condition
	upsertErr  error
	resolveErr error
}

func newMemConditionStore() *memConditionStore {
	return &memConditionStore{rows: make(map[common.Hash]domain.Condition)}
}

func (s *memConditionStore) Upsert(_ context.Context, c domain.Condition) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.rows[c.ID] = c
	return nil
}

func (s *memConditionStore) Resolve(_ context.Context, id common.Hash, numerators []*uint256.Int, denominator *uint256.Int, _ []byte, at time.Time) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	c, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.PayoutNumerators = numerators
	c.PayoutDenominator = denominator
	c.ResolvedAt = &at
	s.rows[id] = c
	return nil
}

func (s *memConditionStore) GetByID(_ context.Context, id common.Hash) (domain.Condition, error) {
	c, ok := s.rows[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memConditionStore) GetByQuestion(_ context.Context, questionID common.Hash) ([]domain.Condition, error) {
	var out []domain.Condition
	for _, c := range s.rows {
		if c.QuestionID == questionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PreparedAt.Before(out[j].PreparedAt) })
	return out, nil
}

func (s *memConditionStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Condition, error) {
	var out []domain.Condition
	for _, c := range s.rows {
		out = append(out, c)
	}
	return out, nil
}

func (s *memConditionStore) Count(_ context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

type memBalanceStore struct {
	balances   map[string]domain.PositionBalance
	allowances map[string]domain.Allowance
	upsertErr  error
}

func newMemBalanceStore() *memBalanceStore {
	return &memBalanceStore{
		balances:   make(map[string]domain.PositionBalance),
		allowances: make(map[string]domain.Allowance),
	}
}

func (s *memBalanceStore) UpsertBalance(_ context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.balances[balKey(positionID, account)] = domain.PositionBalance{
		PositionID: positionID,
		Account:    account,
		Balance:    new(uint256.Int).Set(balance),
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (s *memBalanceStore) UpsertAllowance(_ context.Context, assetID common.Hash, owner, spender common.Address, value *uint256.Int) error {
	s.allowances[allowKey(assetID, owner, spender)] = domain.Allowance{
		AssetID:   assetID,
		Owner:     owner,
		Spender:   spender,
		Value:     new(uint256.Int).Set(value),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *memBalanceStore) GetBalance(_ context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error) {
	b, ok := s.balances[balKey(positionID, account)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(uint256.Int).Set(b.Balance), nil
}

func (s *memBalanceStore) GetAllowance(_ context.Context, assetID common.Hash, owner, spender common.Address) (*uint256.Int, error) {
	a, ok := s.allowances[allowKey(assetID, owner, spender)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(uint256.Int).Set(a.Value), nil
}

func (s *memBalanceStore) ListByAccount(_ context.Context, account common.Address, _ domain.ListOpts) ([]domain.PositionBalance, error) {
	var out []domain.PositionBalance
	for _, b := range s.balances {
		if b.Account == account && !b.Balance.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBalanceStore) LoadBalances(_ context.Context) ([]domain.PositionBalance, error) {
	var out []domain.PositionBalance
	for _, b := range s.balances {
		if !b.Balance.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBalanceStore) LoadAllowances(_ context.Context) ([]domain.Allowance, error) {
	var out []domain.Allowance
	for _, a := range s.allowances {
		if !a.Value.IsZero() {
			out = append(out, a)
		}
	}
	return out, nil
}

type memCollateralStore struct {
	assets   map[common.Address]domain.CollateralAsset
	holdings map[string]domain.CollateralHolding
}

func newMemCollateralStore() *memCollateralStore {
	return &memCollateralStore{
		assets:   make(map[common.Address]domain.CollateralAsset),
		holdings: make(map[string]domain.CollateralHolding),
	}
}

func holdKey(asset, account common.Address) string {
	return asset.Hex() + "/" + account.Hex()
}

func (s *memCollateralStore) UpsertAsset(_ context.Context, a domain.CollateralAsset) error {
	s.assets[a.Address] = a
	return nil
}

func (s *memCollateralStore) GetAsset(_ context.Context, addr common.Address) (domain.CollateralAsset, error) {
	a, ok := s.assets[addr]
	if !ok {
		return domain.CollateralAsset{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memCollateralStore) ListAssets(_ context.Context) ([]domain.CollateralAsset, error) {
	var out []domain.CollateralAsset
	for _, a := range s.assets {
		out = append(out, a)
	}
	return out, nil
}

func (s *memCollateralStore) UpsertHolding(_ context.Context, asset, account common.Address, balance *uint256.Int) error {
	s.holdings[holdKey(asset, account)] = domain.CollateralHolding{
		Asset:     asset,
		Account:   account,
		Balance:   new(uint256.Int).Set(balance),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *memCollateralStore) GetHolding(_ context.Context, asset, account common.Address) (*uint256.Int, error) {
	h, ok := s.holdings[holdKey(asset, account)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(uint256.Int).Set(h.Balance), nil
}

func (s *memCollateralStore) LoadHoldings(_ context.Context) ([]domain.CollateralHolding, error) {
	var out []domain.CollateralHolding
	for _, h := range s.holdings {
		if !h.Balance.IsZero() {
			out = append(out, h)
		}
	}
	return out, nil
}

type memEventStore struct {
	recs      []domain.EventRecord
	appendErr error
}

func (s *memEventStore) Append(_ context.Context, rec domain.EventRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, r := range s.recs {
		if r.Seq == rec.Seq {
			return nil
		}
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memEventStore) List(_ context.Context, typ domain.EventType, _ domain.ListOpts) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for _, r := range s.recs {
		if typ == "" || r.Type == typ {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memEventStore) MaxSeq(_ context.Context) (uint64, error) {
	var max uint64
	for _, r := range s.recs {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max, nil
}

func (s *memEventStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for _, r := range s.recs {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memEventStore) DeleteThrough(_ context.Context, seq uint64) (int64, error) {
	var kept []domain.EventRecord
	var removed int64
	for _, r := range s.recs {
		if r.Seq <= seq {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.recs = kept
	return removed, nil
}

type memBus struct {
	published map[string][][]byte
	streams   map[string][][]byte
	pubErr    error
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memBalanceCache struct {
	vals          map[string]*uint256.Int
	sets          int
	invalidations int
}

func newMemBalanceCache() *memBalanceCache {
	return &memBalanceCache{vals: make(map[string]*uint256.Int)}
}

func (c *memBalanceCache) Set(_ context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error {
	c.vals[balKey(positionID, account)] = new(uint256.Int).Set(balance)
	c.sets++
	return nil
}

func (c *memBalanceCache) Get(_ context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error) {
	v, ok := c.vals[balKey(positionID, account)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return new(uint256.Int).Set(v), nil
}

func (c *memBalanceCache) Invalidate(_ context.Context, positionID common.Hash, account common.Address) error {
	delete(c.vals, balKey(positionID, account))
	c.invalidations++
	return nil
}

type memConditionCache struct {
	vals          map[common.Hash]domain.Condition
	sets          int
	invalidations int
}

func newMemConditionCache() *memConditionCache {
	return &memConditionCache{vals: make(map[common.Hash]domain.Condition)}
}

func (c *memConditionCache) Set(_ context.Context, cond domain.Condition) error {
	c.vals[cond.ID] = cond
	c.sets++
	return nil
}

func (c *memConditionCache) Get(_ context.Context, id common.Hash) (domain.Condition, error) {
	cond, ok := c.vals[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return cond, nil
}

func (c *memConditionCache) Invalidate(_ context.Context, id common.Hash) error {
	delete(c.vals, id)
	c.invalidations++
	return nil
}

type memLocks struct {
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() { delete(l.held, key) }, nil
}

type memAudit struct {
	events  []string
	details []map[string]any
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.details = append(a.details, detail)
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// Interface checks for the doubles.
var (
	_ domain.ConditionStore  = (*memConditionStore)(nil)
	_ domain.BalanceStore    = (*memBalanceStore)(nil)
	_ domain.CollateralStore = (*memCollateralStore)(nil)
	_ domain.EventStore      = (*memEventStore)(nil)
	_ domain.SignalBus       = (*memBus)(nil)
	_ domain.BalanceCache    = (*memBalanceCache)(nil)
	_ domain.ConditionCache  = (*memConditionCache)(nil)
	_ domain.LockManager     = (*memLocks)(nil)
	_ domain.AuditStore      = (*memAudit)(nil)
)

// --------------------------------------------------------------------------
// Fixture wiring a real engine behind the services.
// --------------------------------------------------------------------------

type fixture struct {
	engine     *ctf.Ledger
	registry   *collateral.Registry
	token      *collateral.Token
	conditions *memConditionStore
	balances   *memBalanceStore
	collateral *memCollateralStore
	events     *memEventStore
	bus        *memBus
	balCache   *memBalanceCache
	condCache  *memConditionCache
	audit      *memAudit
	journal    *service.Journal

	condSvc *service.ConditionService
	posSvc  *service.PositionService
	xferSvc *service.TransferService
	collSvc *service.CollateralService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := collateral.NewRegistry()
	token := collateral.NewToken(domain.CollateralAsset{
		Address:  usdc,
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
	}, custody)
	registry.Register(token)

	f := &fixture{
		registry:   registry,
		token:      token,
		conditions: newMemConditionStore(),
		balances:   newMemBalanceStore(),
		collateral: newMemCollateralStore(),
		events:     &memEventStore{},
		bus:        newMemBus(),
		balCache:   newMemBalanceCache(),
		condCache:  newMemConditionCache(),
		audit:      &memAudit{},
	}

	logger := testLogger()
	f.engine = ctf.New(custody, registry)
	f.journal = service.NewJournal(f.events, f.bus, logger)
	f.engine.AddSink(f.journal)

	f.condSvc = service.NewConditionService(f.engine, f.conditions, f.condCache, f.journal, f.audit, logger)
	f.posSvc = service.NewPositionService(f.engine, custody, registry, f.balances, f.collateral, f.balCache, f.journal, f.audit, logger)
	f.xferSvc = service.NewTransferService(f.engine, f.balances, f.balCache, f.journal, f.audit, logger)
	f.collSvc = service.NewCollateralService(registry, custody, f.collateral, true, f.audit, logger)

	return f
}

// newReadOnlyFixture builds services without an engine, sharing the given
// durable state, like a monitor replica pointed at the same database.
func newReadOnlyFixture(src *fixture) *fixture {
	logger := testLogger()
	f := &fixture{
		conditions: src.conditions,
		balances:   src.balances,
		collateral: src.collateral,
		events:     src.events,
		bus:        newMemBus(),
		balCache:   newMemBalanceCache(),
		condCache:  newMemConditionCache(),
		audit:      &memAudit{},
	}
	f.journal = service.NewJournal(f.events, f.bus, logger)
	f.condSvc = service.NewConditionService(nil, f.conditions, f.condCache, f.journal, f.audit, logger)
	f.posSvc = service.NewPositionService(nil, custody, nil, f.balances, f.collateral, f.balCache, f.journal, f.audit, logger)
	f.xferSvc = service.NewTransferService(nil, f.balances, f.balCache, f.journal, f.audit, logger)
	f.collSvc = service.NewCollateralService(nil, custody, f.collateral, false, f.audit, logger)
	return f
}
