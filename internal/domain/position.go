package domain

import "time"

// Side is the direction of a leveraged exposure.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionStatus tracks the lifecycle of a position. A position transitions
// exactly once from open to a terminal state and is never reopened.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "open"
	PositionStatusClosed     PositionStatus = "closed"
	PositionStatusLiquidated PositionStatus = "liquidated"
)

// CloseReason records which path closed a position.
type CloseReason string

const (
	CloseReasonManual      CloseReason = "manual"
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonLiquidation CloseReason = "liquidation"
)

// Position is a single leveraged exposure on the demo account.
type Position struct {
	ID           string
	AccountID    string
	Symbol       string // canonical, e.g. "BTCUSDT"
	Side         Side
	Units        float64 // base-asset quantity, > 0
	EntryPrice   float64
	Leverage     int     // 1..100
	PostedMargin float64 // notional / leverage at open
	TakeProfit   *float64
	StopLoss     *float64
	Status       PositionStatus
	ClosePrice   *float64
	ClosedAt     *time.Time
	RealizedPnL  *float64
	ClosedBy     CloseReason // empty while open
	OpenedAt     time.Time
}

// Open reports whether the position is still live.
func (p Position) Open() bool {
	return p.Status == PositionStatusOpen
}

// Notional is the full economic exposure at the given mark price.
func (p Position) Notional(mark float64) float64 {
	return p.Units * mark
}

// MarginAt is the margin requirement re-derived at the given mark price.
// Unlike PostedMargin it fluctuates with the mark, which makes the margin
// a hard stop at exactly 100% of currently locked collateral.
func (p Position) MarginAt(mark float64) float64 {
	lev := p.Leverage
	if lev < 1 {
		lev = 1
	}
	return p.Notional(mark) / float64(lev)
}

// UnrealizedPnL is the mark-to-market profit or loss of the position.
func (p Position) UnrealizedPnL(mark float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - mark) * p.Units
	}
	return (mark - p.EntryPrice) * p.Units
}

// PositionClose carries the terminal fields written in a single status
// transition out of open.
type PositionClose struct {
	Price       float64
	RealizedPnL float64
	Reason      CloseReason
	ClosedAt    time.Time
}
