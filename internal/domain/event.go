package domain

// Broadcast channel names on the signal bus.
const (
	ChannelTrades = "trades"
	ChannelOrders = "orders"
	ChannelAlerts = "alerts"
)

// EventType identifies a broadcast event.
type EventType string

const (
	EventTick               EventType = "tick"
	EventOrderPlaced        EventType = "order_placed"
	EventOrderClosed        EventType = "order_closed"
	EventPositionLiquidated EventType = "position_liquidated"
)

// Event is the envelope relayed to downstream subscribers. Delivery is
// fire-and-forget; subscribers tolerate gaps and re-fetch snapshots on
// reconnect.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Alert types pushed on the alerts channel.
const (
	AlertTakeProfitHit = "TP_HIT"
	AlertStopLossHit   = "SL_HIT"
	AlertLiquidated    = "LIQUIDATED"
)

// Alert notifies the UI and operators that an automated closure fired.
type Alert struct {
	AccountID  string `json:"account_id"`
	Type       string `json:"type"`
	Symbol     string `json:"symbol"`
	PositionID string `json:"position_id"`
	// Price is the fixed-point scaled trigger price, stringified to survive
	// JSON number precision limits.
	Price string `json:"price"`
	Time  int64  `json:"time"`
}
