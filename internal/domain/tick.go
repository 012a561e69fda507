package domain

import "time"

// Tick is a single normalized trade from the upstream feed. Ticks are
// appended to the durable store for historical reconstruction and the latest
// price per symbol is mirrored into the PriceCache.
type Tick struct {
	Time     time.Time `json:"timestamp"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
}

// OrderRequest is a proposed order after boundary normalization. Admission
// control is the only consumer; loosely-typed external payloads never reach
// the core arithmetic.
type OrderRequest struct {
	AccountID   string
	Symbol      string // canonical
	Side        Side
	Units       float64
	Leverage    int
	ClientPrice *float64 // caller-observed price, validated against the mark
	TakeProfit  *float64
	StopLoss    *float64
}
