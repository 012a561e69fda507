// Package feed connects to the upstream trade stream and turns raw trade
// messages into cached marks, broadcast ticks, and persisted tape batches.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xness/riskcore/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// TradeHandler is called for each aggregated trade received from the stream.
type TradeHandler func(ctx context.Context, tick domain.Tick)

// streamEnvelope is the combined-stream wrapper Binance puts around every
// message: {"stream":"btcusdt@aggTrade","data":{...}}.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// aggTradeMessage is the payload of an aggTrade stream event. Prices and
// quantities arrive as decimal strings.
type aggTradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// BinanceWSFeed maintains a WebSocket connection to the Binance combined
// aggTrade stream for a set of symbols and invokes the handler per trade.
// It reconnects with exponential backoff on disconnect.
type BinanceWSFeed struct {
	baseURL string
	symbols []string
	handler TradeHandler
	logger  *slog.Logger
}

// NewBinanceWSFeed creates a feed for the given canonical symbols.
//
// baseURL is the combined-stream endpoint, e.g. "wss://stream.binance.com:9443/stream".
func NewBinanceWSFeed(baseURL string, symbols []string, handler TradeHandler, logger *slog.Logger) *BinanceWSFeed {
	return &BinanceWSFeed{
		baseURL: baseURL,
		symbols: symbols,
		handler: handler,
		logger:  logger.With(slog.String("component", "binance_ws_feed")),
	}
}

// streamURL builds the combined-stream URL for the configured symbols.
func (f *BinanceWSFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@aggTrade")
	}
	return f.baseURL + "?streams=" + strings.Join(streams, "/")
}

// Run connects and dispatches trades until ctx is cancelled. Disconnects
// trigger reconnection with exponential backoff; the backoff resets after a
// healthy connection.
func (f *BinanceWSFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		start := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(start) > pongWait {
			delay = reconnectDelay
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *BinanceWSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	f.logger.Info("feed connected", slog.Int("symbols", len(f.symbols)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}
		f.handleMessage(ctx, message)
	}
}

// handleMessage parses a combined-stream message and dispatches the trade.
// Malformed messages are dropped and logged; control frames such as
// subscription acks are dropped silently.
func (f *BinanceWSFeed) handleMessage(ctx context.Context, raw []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Debug("dropping unparseable feed message",
			slog.String("error", err.Error()),
		)
		return
	}
	data := env.Data
	if len(data) == 0 {
		// Raw (non-combined) endpoints deliver the payload at the top level.
		data = raw
	}

	var msg aggTradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("dropping unparseable feed payload",
			slog.String("error", err.Error()),
		)
		return
	}
	if msg.EventType != "" && msg.EventType != "aggTrade" {
		return
	}
	if msg.Symbol == "" || msg.Price == "" {
		return
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		f.logger.Debug("dropping trade with unparseable price",
			slog.String("symbol", msg.Symbol),
			slog.String("price", msg.Price),
		)
		return
	}
	qty, _ := strconv.ParseFloat(msg.Quantity, 64)

	ts := time.Now().UTC()
	if msg.TradeTime > 0 {
		ts = time.UnixMilli(msg.TradeTime).UTC()
	}

	f.handler(ctx, domain.Tick{
		Time:     ts,
		Symbol:   msg.Symbol,
		Price:    price,
		Quantity: qty,
	})
}
