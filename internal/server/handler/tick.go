package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/xness/riskcore/internal/domain"
)

// TickService defines the methods the tick handler requires from the service
// layer.
type TickService interface {
	ListTicks(ctx context.Context, symbol string, limit int) ([]domain.Tick, error)
}

// TickHandler serves the recent-ticks endpoint.
type TickHandler struct {
	trading TickService
	logger  *slog.Logger
}

// NewTickHandler creates a TickHandler with the given service and logger.
func NewTickHandler(trading TickService, logger *slog.Logger) *TickHandler {
	return &TickHandler{trading: trading, logger: logger}
}

// ListTicks returns the most recent ticks for a symbol, newest first.
// GET /api/ticks?symbol=BTCUSDT&limit=100
func (h *TickHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}
	limit := parseLimit(r, 100, 1000)

	ticks, err := h.trading.ListTicks(r.Context(), symbol, limit)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list ticks failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list ticks")
		return
	}

	if ticks == nil {
		ticks = []domain.Tick{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticks": ticks})
}
