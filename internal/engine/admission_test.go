package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xness/riskcore/internal/domain"
)

func newAdmissionFixture(t *testing.T) (*Admission, *fakePositionStore, *fakeAccountStore, *fakePriceCache) {
	t.Helper()
	positions := newFakePositionStore()
	accounts := newFakeAccountStore("demo", 5000)
	prices := newFakePriceCache()
	cfg := AdmissionConfig{
		MinLeverage:    1,
		MaxLeverage:    100,
		PriceMaxAge:    5 * time.Second,
		MaxSlippageBps: 50,
		SanityBandPct:  0.10,
	}
	adm := NewAdmission(accounts, positions, prices, cfg, TieredMaintenanceRate, testLogger())
	return adm, positions, accounts, prices
}

func validRequest() domain.OrderRequest {
	return domain.OrderRequest{
		AccountID: "demo",
		Symbol:    "BTCUSDT",
		Side:      domain.SideLong,
		Units:     0.1,
		Leverage:  10,
	}
}

func TestAdmitOpensPositionAtMark(t *testing.T) {
	ctx := context.Background()
	adm, positions, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now()))

	pos, err := adm.Admit(ctx, validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "demo", pos.AccountID)
	assert.Equal(t, "BTCUSDT", pos.Symbol)
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, 30000.0, pos.EntryPrice, "execution is at the authoritative mark")
	assert.InDelta(t, 300, pos.PostedMargin, 1e-9)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.False(t, pos.OpenedAt.IsZero())

	stored, err := positions.GetByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, stored.ID)
}

func TestAdmitRejectsLeverageOutOfRange(t *testing.T) {
	ctx := context.Background()
	adm, _, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now()))

	for _, lev := range []int{0, -1, 101} {
		req := validRequest()
		req.Leverage = lev
		_, err := adm.Admit(ctx, req)
		assert.ErrorIs(t, err, domain.ErrLeverageOutOfRange, "leverage %d", lev)
	}

	// Bounds are inclusive.
	for _, lev := range []int{1, 100} {
		req := validRequest()
		req.Units = 0.001
		req.Leverage = lev
		_, err := adm.Admit(ctx, req)
		assert.NoError(t, err, "leverage %d", lev)
	}
}

func TestAdmitRejectsMissingPrice(t *testing.T) {
	ctx := context.Background()
	adm, _, _, _ := newAdmissionFixture(t)

	_, err := adm.Admit(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestAdmitRejectsStalePrice(t *testing.T) {
	ctx := context.Background()
	adm, _, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now().Add(-time.Minute)))

	_, err := adm.Admit(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrPriceStale)
}

func TestAdmitClientPriceGates(t *testing.T) {
	ctx := context.Background()
	adm, _, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now()))

	t.Run("within slippage tolerance", func(t *testing.T) {
		req := validRequest()
		req.ClientPrice = ptr(30010.0) // ~3.3 bps
		_, err := adm.Admit(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("beyond slippage tolerance", func(t *testing.T) {
		req := validRequest()
		req.ClientPrice = ptr(30600.0) // 200 bps, inside the sanity band
		_, err := adm.Admit(ctx, req)
		assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
	})

	t.Run("outside sanity band", func(t *testing.T) {
		req := validRequest()
		req.ClientPrice = ptr(45000.0) // 50% off, malformed input
		_, err := adm.Admit(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	})
}

func TestAdmitMarginBoundary(t *testing.T) {
	ctx := context.Background()
	adm, _, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 25000, time.Now()))

	// Two units at a 25000 mark with 10x require exactly 5000 of margin,
	// which equals the free margin. Equality is accepted; anything past it
	// is not.
	req := validRequest()
	req.Units = 2
	_, err := adm.Admit(ctx, req)
	assert.NoError(t, err, "required margin equal to free margin is accepted")

	over := validRequest()
	over.Units = 0.1
	_, err = adm.Admit(ctx, over)
	assert.ErrorIs(t, err, domain.ErrInsufficientMargin, "free margin is exhausted by the first position")
}

func TestAdmitInvalidRequests(t *testing.T) {
	ctx := context.Background()
	adm, _, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now()))

	cases := map[string]func(*domain.OrderRequest){
		"missing account":    func(r *domain.OrderRequest) { r.AccountID = "" },
		"missing symbol":     func(r *domain.OrderRequest) { r.Symbol = "" },
		"bad side":           func(r *domain.OrderRequest) { r.Side = "sideways" },
		"zero units":         func(r *domain.OrderRequest) { r.Units = 0 },
		"negative units":     func(r *domain.OrderRequest) { r.Units = -1 },
		"zero take profit":   func(r *domain.OrderRequest) { r.TakeProfit = ptr(0.0) },
		"negative stop loss": func(r *domain.OrderRequest) { r.StopLoss = ptr(-5.0) },
		"zero client price":  func(r *domain.OrderRequest) { r.ClientPrice = ptr(0.0) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := adm.Admit(ctx, req)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
	}
}

func TestAdmitAccountsForOpenExposure(t *testing.T) {
	ctx := context.Background()
	adm, positions, _, prices := newAdmissionFixture(t)
	require.NoError(t, prices.SetPrice(ctx, "BTCUSDT", 30000, time.Now()))

	// An existing losing position reduces free margin below what the balance
	// alone would suggest.
	require.NoError(t, positions.Create(ctx, domain.Position{
		ID: "existing", AccountID: "demo", Symbol: "BTCUSDT", Side: domain.SideLong,
		Units: 1, EntryPrice: 33000, Leverage: 10, PostedMargin: 3300,
		Status: domain.PositionStatusOpen,
	}))
	// Equity = 5000 − 3000 = 2000, used = 3000, free = −1000.

	_, err := adm.Admit(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrInsufficientMargin)
}
