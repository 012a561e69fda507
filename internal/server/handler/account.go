package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/xness/riskcore/internal/domain"
)

// SnapshotService defines the methods the account handler requires from the
// service layer.
type SnapshotService interface {
	Snapshot(ctx context.Context, accountID string) (domain.Snapshot, error)
}

// AccountHandler serves the account snapshot endpoint.
type AccountHandler struct {
	accountID string
	trading   SnapshotService
	logger    *slog.Logger
}

// NewAccountHandler creates an AccountHandler bound to the venue's account.
func NewAccountHandler(accountID string, trading SnapshotService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountID: accountID,
		trading:   trading,
		logger:    logger,
	}
}

// Snapshot returns the live margin state of the account.
// GET /api/account/snapshot
func (h *AccountHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.trading.Snapshot(r.Context(), h.accountID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
