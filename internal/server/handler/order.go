package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xness/riskcore/internal/domain"
)

// TradingService defines the methods the order handler requires from the
// service layer.
type TradingService interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Position, error)
}

// OrderHandler serves the order placement endpoint.
type OrderHandler struct {
	accountID string
	trading   TradingService
	logger    *slog.Logger
}

// NewOrderHandler creates an OrderHandler bound to the venue's account.
func NewOrderHandler(accountID string, trading TradingService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		accountID: accountID,
		trading:   trading,
		logger:    logger,
	}
}

// orderPayload accepts the loosely-named field variants clients send. Every
// alias resolves to one canonical OrderRequest before the core sees it.
type orderPayload struct {
	Symbol string `json:"symbol"`
	Asset  string `json:"asset"`

	Side string `json:"side"`

	Units  *float64 `json:"units"`
	Volume *float64 `json:"volume"`
	Qty    *float64 `json:"qty"`

	Leverage int `json:"leverage"`

	Price       *float64 `json:"price"`
	ClientPrice *float64 `json:"client_price"`

	TP         *float64 `json:"tp"`
	TakeProfit *float64 `json:"take_profit"`
	SL         *float64 `json:"sl"`
	StopLoss   *float64 `json:"stop_loss"`
}

func (p orderPayload) toRequest(accountID string) (domain.OrderRequest, string) {
	symbol := p.Symbol
	if symbol == "" {
		symbol = p.Asset
	}
	symbol = domain.CanonicalSymbol(symbol)
	if symbol == "" {
		return domain.OrderRequest{}, "symbol is required"
	}

	var side domain.Side
	switch strings.ToLower(strings.TrimSpace(p.Side)) {
	case "long", "buy":
		side = domain.SideLong
	case "short", "sell":
		side = domain.SideShort
	default:
		return domain.OrderRequest{}, "side must be long/buy or short/sell"
	}

	units := firstSet(p.Units, p.Volume, p.Qty)
	if units == nil {
		return domain.OrderRequest{}, "units is required"
	}

	return domain.OrderRequest{
		AccountID:   accountID,
		Symbol:      symbol,
		Side:        side,
		Units:       *units,
		Leverage:    p.Leverage,
		ClientPrice: firstSet(p.ClientPrice, p.Price),
		TakeProfit:  firstSet(p.TakeProfit, p.TP),
		StopLoss:    firstSet(p.StopLoss, p.SL),
	}, ""
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// PlaceOrder opens a new leveraged position from a JSON body.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, msg := payload.toRequest(h.accountID)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	pos, err := h.trading.PlaceOrder(r.Context(), req)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: place order failed",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place order")
		return
	}

	writeJSON(w, http.StatusCreated, positionResponse(pos))
}
