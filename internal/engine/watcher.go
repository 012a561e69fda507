package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/xness/riskcore/internal/domain"
)

// Watcher evaluates take-profit and stop-loss triggers against every tick on
// the trades channel. Comparisons use fixed-point scaled integers so a tick
// equal to the configured trigger always fires regardless of float rounding.
type Watcher struct {
	accountID string
	bus       domain.SignalBus
	positions domain.PositionStore
	closer    *Closer
	logger    *slog.Logger
}

// NewWatcher creates a Watcher for one account.
func NewWatcher(accountID string, bus domain.SignalBus, positions domain.PositionStore, closer *Closer, logger *slog.Logger) *Watcher {
	return &Watcher{
		accountID: accountID,
		bus:       bus,
		positions: positions,
		closer:    closer,
		logger:    logger.With(slog.String("component", "watcher")),
	}
}

// Run subscribes to the trades channel and evaluates triggers per tick until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ch, err := w.bus.Subscribe(ctx, domain.ChannelTrades)
	if err != nil {
		return err
	}
	w.logger.Info("watcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			tick, ok := decodeTickEvent(sig.Payload)
			if !ok {
				continue
			}
			w.HandleTick(ctx, tick)
		}
	}
}

func decodeTickEvent(payload []byte) (domain.Tick, bool) {
	var ev struct {
		Type    domain.EventType `json:"type"`
		Payload domain.Tick      `json:"payload"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.Tick{}, false
	}
	if ev.Type != domain.EventTick || ev.Payload.Symbol == "" {
		return domain.Tick{}, false
	}
	return ev.Payload, true
}

// HandleTick evaluates all open positions on the tick's symbol. When both
// triggers are crossed in one jump the take-profit wins.
func (w *Watcher) HandleTick(ctx context.Context, tick domain.Tick) {
	open, err := w.positions.ListOpenBySymbol(ctx, w.accountID, tick.Symbol)
	if err != nil {
		w.logger.Error("list open positions failed",
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, p := range open {
		reason, hit := triggeredReason(p, tick.Symbol, tick.Price)
		if !hit {
			continue
		}
		w.tryClose(ctx, p.ID, tick.Price, reason)
	}
}

// triggeredReason reports which conditional trigger, if any, the last price
// crossed for the position.
func triggeredReason(p domain.Position, symbol string, last float64) (domain.CloseReason, bool) {
	lastScaled, ok := domain.ScaledPrice(symbol, last)
	if !ok {
		return "", false
	}

	tpHit := false
	if p.TakeProfit != nil {
		if tp, ok := domain.ScaledPrice(symbol, *p.TakeProfit); ok {
			if p.Side == domain.SideLong {
				tpHit = lastScaled >= tp
			} else {
				tpHit = lastScaled <= tp
			}
		}
	}
	if tpHit {
		return domain.CloseReasonTakeProfit, true
	}

	if p.StopLoss != nil {
		if sl, ok := domain.ScaledPrice(symbol, *p.StopLoss); ok {
			slHit := false
			if p.Side == domain.SideLong {
				slHit = lastScaled <= sl
			} else {
				slHit = lastScaled >= sl
			}
			if slHit {
				return domain.CloseReasonStopLoss, true
			}
		}
	}
	return "", false
}

// tryClose settles a triggered position. A held lock or an already terminal
// position means a racing evaluator got there first, which is a no-op here.
func (w *Watcher) tryClose(ctx context.Context, positionID string, price float64, reason domain.CloseReason) {
	_, err := w.closer.Close(ctx, positionID, price, reason)
	if err != nil && !errors.Is(err, domain.ErrLockHeld) && !errors.Is(err, domain.ErrAlreadyClosed) {
		w.logger.Error("conditional close failed",
			slog.String("position_id", positionID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	}
}
