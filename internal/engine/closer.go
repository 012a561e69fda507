package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xness/riskcore/internal/domain"
)

// AlertNotifier pushes operator-facing notifications for automated closures.
type AlertNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Closer is the single pathway for taking a position out of the open state.
// Every caller, whether manual, conditional, or forced, goes through the same
// lock, re-read, conditional update, and settlement sequence, so a position
// settles exactly once no matter how many triggers fire concurrently.
type Closer struct {
	positions domain.PositionStore
	accounts  domain.AccountStore
	locks     domain.LockManager
	bus       domain.SignalBus
	notifier  AlertNotifier // optional
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewCloser creates a Closer. notifier may be nil.
func NewCloser(
	positions domain.PositionStore,
	accounts domain.AccountStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	notifier AlertNotifier,
	lockTTL time.Duration,
	logger *slog.Logger,
) *Closer {
	if lockTTL <= 0 {
		lockTTL = 3 * time.Second
	}
	return &Closer{
		positions: positions,
		accounts:  accounts,
		locks:     locks,
		bus:       bus,
		notifier:  notifier,
		lockTTL:   lockTTL,
		logger:    logger.With(slog.String("component", "closer")),
	}
}

// ClosedPosition is the settlement outcome returned to the caller and
// broadcast on the orders channel.
type ClosedPosition struct {
	PositionID  string             `json:"position_id"`
	AccountID   string             `json:"account_id"`
	Symbol      string             `json:"symbol"`
	Side        domain.Side        `json:"side"`
	Units       float64            `json:"units"`
	EntryPrice  float64            `json:"entry_price"`
	ClosePrice  float64            `json:"close_price"`
	Leverage    int                `json:"leverage"`
	RealizedPnL float64            `json:"realized_pnl"`
	Reason      domain.CloseReason `json:"reason"`
	Balance     float64            `json:"balance"`
	ClosedAt    time.Time          `json:"closed_at"`
}

// Close settles the position at the given price for the given reason.
//
// The realized PnL is the full mark-to-market result, except under forced
// liquidation where the loss is capped at the margin posted when the position
// was opened. It returns domain.ErrLockHeld when another evaluator is already
// closing the position and domain.ErrAlreadyClosed when the position reached
// a terminal state first; both are ordinary outcomes for racing triggers.
func (c *Closer) Close(ctx context.Context, positionID string, price float64, reason domain.CloseReason) (ClosedPosition, error) {
	unlock, err := c.locks.Acquire(ctx, "close:"+positionID, c.lockTTL)
	if err != nil {
		return ClosedPosition{}, err
	}
	defer unlock()

	// Re-read the live status under the lock. A stale in-memory copy must
	// never drive a settlement.
	p, err := c.positions.GetByID(ctx, positionID)
	if err != nil {
		return ClosedPosition{}, err
	}
	if !p.Open() {
		return ClosedPosition{}, domain.ErrAlreadyClosed
	}

	realized := p.UnrealizedPnL(price)
	if reason == domain.CloseReasonLiquidation && realized < -p.PostedMargin {
		realized = -p.PostedMargin
	}

	closedAt := time.Now().UTC()
	if err := c.positions.CloseIfOpen(ctx, positionID, domain.PositionClose{
		Price:       price,
		RealizedPnL: realized,
		Reason:      reason,
		ClosedAt:    closedAt,
	}); err != nil {
		return ClosedPosition{}, err
	}

	balance, err := c.accounts.AdjustBalance(ctx, p.AccountID, realized)
	if err != nil {
		// The position is already terminal; surface the settlement failure
		// rather than trying to undo the transition.
		return ClosedPosition{}, fmt.Errorf("engine: settle position %s: %w", positionID, err)
	}

	closed := ClosedPosition{
		PositionID:  p.ID,
		AccountID:   p.AccountID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Units:       p.Units,
		EntryPrice:  p.EntryPrice,
		ClosePrice:  price,
		Leverage:    p.Leverage,
		RealizedPnL: realized,
		Reason:      reason,
		Balance:     balance,
		ClosedAt:    closedAt,
	}

	c.logger.Info("position closed",
		slog.String("position_id", p.ID),
		slog.String("symbol", p.Symbol),
		slog.String("reason", string(reason)),
		slog.Float64("price", price),
		slog.Float64("realized_pnl", realized),
		slog.Float64("balance", balance),
	)

	c.broadcast(ctx, closed)
	return closed, nil
}

func (c *Closer) broadcast(ctx context.Context, closed ClosedPosition) {
	eventType := domain.EventOrderClosed
	if closed.Reason == domain.CloseReasonLiquidation {
		eventType = domain.EventPositionLiquidated
	}
	if payload, err := json.Marshal(domain.Event{Type: eventType, Payload: closed}); err == nil {
		if err := c.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
			c.logger.Warn("close broadcast failed", slog.String("error", err.Error()))
		}
	}

	alertType := alertTypeFor(closed.Reason)
	if alertType == "" {
		return
	}

	alert := domain.Alert{
		AccountID:  closed.AccountID,
		Type:       alertType,
		Symbol:     closed.Symbol,
		PositionID: closed.PositionID,
		Price:      scaledPriceString(closed.Symbol, closed.ClosePrice),
		Time:       closed.ClosedAt.UnixMilli(),
	}
	if payload, err := json.Marshal(alert); err == nil {
		if err := c.bus.Publish(ctx, domain.ChannelAlerts, payload); err != nil {
			c.logger.Warn("alert broadcast failed", slog.String("error", err.Error()))
		}
	}

	if c.notifier != nil {
		title := fmt.Sprintf("%s %s", alertType, closed.Symbol)
		msg := fmt.Sprintf("position %s closed at %.8g, realized %.2f, balance %.2f",
			closed.PositionID, closed.ClosePrice, closed.RealizedPnL, closed.Balance)
		if err := c.notifier.Notify(ctx, alertType, title, msg); err != nil {
			c.logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
}

func alertTypeFor(reason domain.CloseReason) string {
	switch reason {
	case domain.CloseReasonTakeProfit:
		return domain.AlertTakeProfitHit
	case domain.CloseReasonStopLoss:
		return domain.AlertStopLossHit
	case domain.CloseReasonLiquidation:
		return domain.AlertLiquidated
	default:
		return ""
	}
}

func scaledPriceString(symbol string, price float64) string {
	if scaled, ok := domain.ScaledPrice(symbol, price); ok {
		return strconv.FormatInt(scaled, 10)
	}
	return strconv.FormatFloat(price, 'f', -1, 64)
}
