package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/xness/riskcore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// In-memory doubles for the domain ports. They mirror the semantics of the
// real stores, including the conditional close transition and the zero floor
// on balance adjustments, so the scenarios below exercise the same contracts
// the production wiring does.

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
	stamps map[string]time.Time
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{
		prices: map[string]float64{},
		stamps: map[string]time.Time{},
	}
}

func (f *fakePriceCache) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	f.stamps[symbol] = ts
	return nil
}

func (f *fakePriceCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrPriceUnavailable
	}
	return price, f.stamps[symbol], nil
}

func (f *fakePriceCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if p, ok := f.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

type fakePositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newFakePositionStore(positions ...domain.Position) *fakePositionStore {
	s := &fakePositionStore{positions: map[string]domain.Position{}}
	for _, p := range positions {
		s.positions[p.ID] = p
	}
	return s
}

func (f *fakePositionStore) Create(_ context.Context, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[pos.ID] = pos
	return nil
}

func (f *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePositionStore) ListOpen(_ context.Context, accountID string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, p := range f.positions {
		if p.AccountID == accountID && p.Open() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositionStore) ListOpenBySymbol(_ context.Context, accountID, symbol string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, p := range f.positions {
		if p.AccountID == accountID && p.Symbol == symbol && p.Open() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositionStore) List(_ context.Context, accountID string, status domain.PositionStatus, limit int) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, p := range f.positions {
		if p.AccountID != accountID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePositionStore) CloseIfOpen(_ context.Context, id string, close domain.PositionClose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !p.Open() {
		return domain.ErrAlreadyClosed
	}
	status := domain.PositionStatusClosed
	if close.Reason == domain.CloseReasonLiquidation {
		status = domain.PositionStatusLiquidated
	}
	price := close.Price
	realized := close.RealizedPnL
	closedAt := close.ClosedAt
	p.Status = status
	p.ClosePrice = &price
	p.RealizedPnL = &realized
	p.ClosedAt = &closedAt
	p.ClosedBy = close.Reason
	f.positions[id] = p
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	balances map[string]float64
}

func newFakeAccountStore(id string, balance float64) *fakeAccountStore {
	return &fakeAccountStore{balances: map[string]float64{id: balance}}
}

func (f *fakeAccountStore) Get(_ context.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return domain.Account{ID: id, Balance: bal}, nil
}

func (f *fakeAccountStore) Ensure(_ context.Context, id string, startingBalance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[id]; !ok {
		f.balances[id] = startingBalance
	}
	return nil
}

func (f *fakeAccountStore) AdjustBalance(_ context.Context, id string, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	bal += delta
	if bal < 0 {
		bal = 0
	}
	f.balances[id] = bal
	return bal, nil
}

type fakeLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: map[string]bool{}}
}

// hold marks a key as taken by someone else until release is called.
func (f *fakeLockManager) hold(key string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}
}

func (f *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	subs      []chan domain.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	for _, ch := range f.subs {
		select {
		case ch <- domain.Signal{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ ...string) (<-chan domain.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.Signal, 64)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeBus) messages(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.published[channel]))
	copy(out, f.published[channel])
	return out
}

type fakeSnapshotCache struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{snaps: map[string]domain.Snapshot{}}
}

func (f *fakeSnapshotCache) Set(_ context.Context, accountID string, snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[accountID] = snap
	return nil
}

func (f *fakeSnapshotCache) Get(_ context.Context, accountID string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[accountID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

var (
	_ domain.PriceCache    = (*fakePriceCache)(nil)
	_ domain.PositionStore = (*fakePositionStore)(nil)
	_ domain.AccountStore  = (*fakeAccountStore)(nil)
	_ domain.LockManager   = (*fakeLockManager)(nil)
	_ domain.SignalBus     = (*fakeBus)(nil)
	_ domain.SnapshotCache = (*fakeSnapshotCache)(nil)
)
