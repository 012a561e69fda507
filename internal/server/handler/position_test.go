package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xness/riskcore/internal/domain"
	"github.com/xness/riskcore/internal/engine"
)

type stubPositions struct {
	status    domain.PositionStatus
	limit     int
	positions []domain.Position
	listErr   error

	closedID string
	closed   engine.ClosedPosition
	closeErr error
}

func (s *stubPositions) ListPositions(_ context.Context, _ string, status domain.PositionStatus, limit int) ([]domain.Position, error) {
	s.status = status
	s.limit = limit
	return s.positions, s.listErr
}

func (s *stubPositions) ClosePosition(_ context.Context, positionID string) (engine.ClosedPosition, error) {
	s.closedID = positionID
	return s.closed, s.closeErr
}

func TestListPositions(t *testing.T) {
	tp := 31000.0
	stub := &stubPositions{positions: []domain.Position{{
		ID:           "p1",
		AccountID:    "demo",
		Symbol:       "BTCUSDT",
		Side:         domain.SideLong,
		Units:        0.1,
		EntryPrice:   30000,
		Leverage:     10,
		PostedMargin: 300,
		TakeProfit:   &tp,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}}}
	h := NewPositionHandler("demo", stub, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?status=open&limit=10", nil)
	w := httptest.NewRecorder()
	h.ListPositions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PositionStatusOpen, stub.status)
	assert.Equal(t, 10, stub.limit)

	var body struct {
		Positions []map[string]any `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "p1", body.Positions[0]["id"])
	assert.Equal(t, "long", body.Positions[0]["side"])
	assert.Equal(t, 31000.0, body.Positions[0]["take_profit"])
	_, hasClose := body.Positions[0]["close_price"]
	assert.False(t, hasClose, "terminal fields are omitted while open")
}

func TestListPositionsRejectsUnknownStatus(t *testing.T) {
	h := NewPositionHandler("demo", &stubPositions{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?status=pending", nil)
	w := httptest.NewRecorder()
	h.ListPositions(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPositionsCapsLimit(t *testing.T) {
	stub := &stubPositions{}
	h := NewPositionHandler("demo", stub, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?limit=9999", nil)
	w := httptest.NewRecorder()
	h.ListPositions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, stub.limit)
}

func closePosition(t *testing.T, h *PositionHandler, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/positions/"+id+"/close", nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.ClosePosition(w, req)
	return w
}

func TestClosePosition(t *testing.T) {
	stub := &stubPositions{closed: engine.ClosedPosition{
		PositionID:  "p1",
		RealizedPnL: -330,
		Balance:     4670,
		Reason:      domain.CloseReasonManual,
	}}
	h := NewPositionHandler("demo", stub, testLogger())

	w := closePosition(t, h, "p1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", stub.closedID)

	var closed engine.ClosedPosition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &closed))
	assert.Equal(t, -330.0, closed.RealizedPnL)
	assert.Equal(t, 4670.0, closed.Balance)
}

func TestClosePositionErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"not found":      {domain.ErrNotFound, http.StatusNotFound},
		"already closed": {domain.ErrAlreadyClosed, http.StatusConflict},
		"lock held":      {domain.ErrLockHeld, http.StatusConflict},
		"no price":       {domain.ErrPriceUnavailable, http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewPositionHandler("demo", &stubPositions{closeErr: tc.err}, testLogger())
			w := closePosition(t, h, "p1")
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
