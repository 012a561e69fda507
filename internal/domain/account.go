package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Account is the single ledger for a trading identity. Balance holds realized
// collateral only; everything mark-to-market is derived on demand.
type Account struct {
	ID        string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the derived margin state of an account at one instant. It is
// recomputed from (balance, open positions, latest prices) and never stored
// as authoritative state.
type Snapshot struct {
	Balance       float64
	UnrealizedPnL float64
	Equity        float64 // balance + Σ unrealized PnL
	UsedMargin    float64 // Σ notional(mark) / leverage
	FreeMargin    float64 // equity − used margin
	Maintenance   float64 // Σ notional(mark) × maintenance rate
	MarginLevel   float64 // equity / used margin; +Inf when nothing is used
}

// Healthy reports whether equity still covers the maintenance requirement.
func (s Snapshot) Healthy() bool {
	return s.UsedMargin == 0 || s.Equity > s.Maintenance
}

// MarshalJSON renders MarginLevel as null when it is +Inf, since JSON has no
// infinity and clients display the undefined level as "—".
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var level *float64
	if !math.IsInf(s.MarginLevel, 0) {
		level = &s.MarginLevel
	}
	return json.Marshal(struct {
		Balance       float64  `json:"balance"`
		UnrealizedPnL float64  `json:"unrealized_pnl"`
		Equity        float64  `json:"equity"`
		UsedMargin    float64  `json:"used_margin"`
		FreeMargin    float64  `json:"free_margin"`
		Maintenance   float64  `json:"maintenance"`
		MarginLevel   *float64 `json:"margin_level"`
	}{s.Balance, s.UnrealizedPnL, s.Equity, s.UsedMargin, s.FreeMargin, s.Maintenance, level})
}

// UnmarshalJSON is the inverse of MarshalJSON: a null margin level is read
// back as +Inf.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Balance       float64  `json:"balance"`
		UnrealizedPnL float64  `json:"unrealized_pnl"`
		Equity        float64  `json:"equity"`
		UsedMargin    float64  `json:"used_margin"`
		FreeMargin    float64  `json:"free_margin"`
		Maintenance   float64  `json:"maintenance"`
		MarginLevel   *float64 `json:"margin_level"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Balance = raw.Balance
	s.UnrealizedPnL = raw.UnrealizedPnL
	s.Equity = raw.Equity
	s.UsedMargin = raw.UsedMargin
	s.FreeMargin = raw.FreeMargin
	s.Maintenance = raw.Maintenance
	if raw.MarginLevel != nil {
		s.MarginLevel = *raw.MarginLevel
	} else {
		s.MarginLevel = math.Inf(1)
	}
	return nil
}
