// Package service orchestrates the request-facing operations on top of the
// risk engine and the stores.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xness/riskcore/internal/domain"
	"github.com/xness/riskcore/internal/engine"
)

// TradingService exposes order placement, manual closure, and the read
// surfaces used by the HTTP and WebSocket front ends.
type TradingService struct {
	accounts  domain.AccountStore
	positions domain.PositionStore
	ticks     domain.TickStore
	prices    domain.PriceCache
	snapshots domain.SnapshotCache
	bus       domain.SignalBus
	limiter   domain.RateLimiter
	admission *engine.Admission
	closer    *engine.Closer
	mmr       engine.MaintenanceFunc

	ordersPerMinute int
	logger          *slog.Logger
}

// NewTradingService creates a TradingService. limiter and snapshots may be
// nil, which disables rate limiting and the snapshot mirror respectively.
func NewTradingService(
	accounts domain.AccountStore,
	positions domain.PositionStore,
	ticks domain.TickStore,
	prices domain.PriceCache,
	snapshots domain.SnapshotCache,
	bus domain.SignalBus,
	limiter domain.RateLimiter,
	admission *engine.Admission,
	closer *engine.Closer,
	mmr engine.MaintenanceFunc,
	ordersPerMinute int,
	logger *slog.Logger,
) *TradingService {
	if mmr == nil {
		mmr = engine.TieredMaintenanceRate
	}
	return &TradingService{
		accounts:        accounts,
		positions:       positions,
		ticks:           ticks,
		prices:          prices,
		snapshots:       snapshots,
		bus:             bus,
		limiter:         limiter,
		admission:       admission,
		closer:          closer,
		mmr:             mmr,
		ordersPerMinute: ordersPerMinute,
		logger:          logger.With(slog.String("component", "trading_service")),
	}
}

// PlaceOrder admits and opens a new position, then announces it on the
// orders channel.
func (s *TradingService) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Position, error) {
	if s.limiter != nil && s.ordersPerMinute > 0 {
		allowed, err := s.limiter.Allow(ctx, "orders:"+req.AccountID, s.ordersPerMinute, time.Minute)
		if err != nil {
			// Fail open: a broken limiter must not take order placement down.
			s.logger.Warn("rate limiter failed, admitting",
				slog.String("account_id", req.AccountID),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.Position{}, fmt.Errorf("service: account %s: %w", req.AccountID, domain.ErrRateLimited)
		}
	}

	pos, err := s.admission.Admit(ctx, req)
	if err != nil {
		return domain.Position{}, err
	}

	if payload, err := json.Marshal(domain.Event{Type: domain.EventOrderPlaced, Payload: pos}); err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
			s.logger.Warn("order broadcast failed", slog.String("error", err.Error()))
		}
	}
	return pos, nil
}

// ClosePosition settles a position at the current mark on the caller's
// request.
func (s *TradingService) ClosePosition(ctx context.Context, positionID string) (engine.ClosedPosition, error) {
	p, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return engine.ClosedPosition{}, err
	}
	if !p.Open() {
		return engine.ClosedPosition{}, domain.ErrAlreadyClosed
	}

	mark, _, err := s.prices.GetPrice(ctx, p.Symbol)
	if err != nil {
		return engine.ClosedPosition{}, err
	}

	return s.closer.Close(ctx, positionID, mark, domain.CloseReasonManual)
}

// Snapshot computes the live margin state for the account and refreshes the
// mirror that serves the gateway's status frames.
func (s *TradingService) Snapshot(ctx context.Context, accountID string) (domain.Snapshot, error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	open, err := s.positions.ListOpen(ctx, accountID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	prices := map[string]float64{}
	if len(open) > 0 {
		symbols := make([]string, 0, len(open))
		seen := make(map[string]struct{}, len(open))
		for _, p := range open {
			if _, dup := seen[p.Symbol]; !dup {
				seen[p.Symbol] = struct{}{}
				symbols = append(symbols, p.Symbol)
			}
		}
		if prices, err = s.prices.GetPrices(ctx, symbols); err != nil {
			return domain.Snapshot{}, err
		}
	}

	snap := engine.ComputeSnapshot(acct.Balance, open, prices, s.mmr)

	if s.snapshots != nil {
		if err := s.snapshots.Set(ctx, accountID, snap); err != nil {
			s.logger.Debug("snapshot mirror write failed", slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// CachedSnapshot serves the mirrored snapshot when present, falling back to
// a live computation.
func (s *TradingService) CachedSnapshot(ctx context.Context, accountID string) (domain.Snapshot, error) {
	if s.snapshots != nil {
		if snap, err := s.snapshots.Get(ctx, accountID); err == nil {
			return snap, nil
		}
	}
	return s.Snapshot(ctx, accountID)
}

// ListPositions returns the account's positions, optionally filtered by
// status, newest first.
func (s *TradingService) ListPositions(ctx context.Context, accountID string, status domain.PositionStatus, limit int) ([]domain.Position, error) {
	return s.positions.List(ctx, accountID, status, limit)
}

// ListTicks returns the most recent ticks for a symbol, newest first. The
// symbol is canonicalized before lookup.
func (s *TradingService) ListTicks(ctx context.Context, symbol string, limit int) ([]domain.Tick, error) {
	sym := domain.CanonicalSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("service: symbol %q: %w", symbol, domain.ErrInvalidOrder)
	}
	return s.ticks.ListBySymbol(ctx, sym, limit)
}
