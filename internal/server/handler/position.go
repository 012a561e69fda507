package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/xness/riskcore/internal/domain"
	"github.com/xness/riskcore/internal/engine"
)

// PositionService defines the methods the position handler requires from the
// service layer.
type PositionService interface {
	ListPositions(ctx context.Context, accountID string, status domain.PositionStatus, limit int) ([]domain.Position, error)
	ClosePosition(ctx context.Context, positionID string) (engine.ClosedPosition, error)
}

// PositionHandler serves position listing and manual closure.
type PositionHandler struct {
	accountID string
	trading   PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler bound to the venue's account.
func NewPositionHandler(accountID string, trading PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		accountID: accountID,
		trading:   trading,
		logger:    logger,
	}
}

// positionView is the JSON shape of a position on the wire.
type positionView struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"`
	Units        float64    `json:"units"`
	EntryPrice   float64    `json:"entry_price"`
	Leverage     int        `json:"leverage"`
	PostedMargin float64    `json:"posted_margin"`
	TakeProfit   *float64   `json:"take_profit,omitempty"`
	StopLoss     *float64   `json:"stop_loss,omitempty"`
	Status       string     `json:"status"`
	ClosePrice   *float64   `json:"close_price,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	RealizedPnL  *float64   `json:"realized_pnl,omitempty"`
	ClosedBy     string     `json:"closed_by,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
}

func positionResponse(p domain.Position) positionView {
	return positionView{
		ID:           p.ID,
		AccountID:    p.AccountID,
		Symbol:       p.Symbol,
		Side:         string(p.Side),
		Units:        p.Units,
		EntryPrice:   p.EntryPrice,
		Leverage:     p.Leverage,
		PostedMargin: p.PostedMargin,
		TakeProfit:   p.TakeProfit,
		StopLoss:     p.StopLoss,
		Status:       string(p.Status),
		ClosePrice:   p.ClosePrice,
		ClosedAt:     p.ClosedAt,
		RealizedPnL:  p.RealizedPnL,
		ClosedBy:     string(p.ClosedBy),
		OpenedAt:     p.OpenedAt,
	}
}

// ListPositions returns the account's positions, optionally filtered by status.
// GET /api/positions?status=open&limit=50
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	status := domain.PositionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.PositionStatusOpen, domain.PositionStatusClosed, domain.PositionStatusLiquidated:
	default:
		writeError(w, http.StatusBadRequest, "status must be open, closed, or liquidated")
		return
	}
	limit := parseLimit(r, 100, 500)

	positions, err := h.trading.ListPositions(r.Context(), h.accountID, status, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}

// ClosePosition settles a position at the current mark on the caller's request.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	closed, err := h.trading.ClosePosition(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: close position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to close position")
		return
	}

	writeJSON(w, http.StatusOK, closed)
}
