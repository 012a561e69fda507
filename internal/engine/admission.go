package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/xness/riskcore/internal/domain"
)

// AdmissionConfig holds the tunable parameters for pre-trade checks.
type AdmissionConfig struct {
	MinLeverage    int
	MaxLeverage    int
	PriceMaxAge    time.Duration
	MaxSlippageBps float64
	SanityBandPct  float64
}

// Admission validates and opens positions. No order reaches the books
// without a fresh authoritative mark, leverage within bounds, and enough
// free margin to post; there is no partial admission.
type Admission struct {
	accounts  domain.AccountStore
	positions domain.PositionStore
	prices    domain.PriceCache
	cfg       AdmissionConfig
	mmr       MaintenanceFunc
	logger    *slog.Logger
}

// NewAdmission creates an Admission with all required dependencies.
func NewAdmission(
	accounts domain.AccountStore,
	positions domain.PositionStore,
	prices domain.PriceCache,
	cfg AdmissionConfig,
	mmr MaintenanceFunc,
	logger *slog.Logger,
) *Admission {
	if mmr == nil {
		mmr = TieredMaintenanceRate
	}
	return &Admission{
		accounts:  accounts,
		positions: positions,
		prices:    prices,
		cfg:       cfg,
		mmr:       mmr,
		logger:    logger.With(slog.String("component", "admission")),
	}
}

// Admit runs the full admission sequence for the request and, if every check
// passes, persists and returns the new open position.
//
// Execution is always at the authoritative mark; a client-observed price only
// gates admission. Leverage outside bounds is rejected, never clamped.
func (a *Admission) Admit(ctx context.Context, req domain.OrderRequest) (domain.Position, error) {
	if err := validateRequest(req); err != nil {
		return domain.Position{}, err
	}

	if req.Leverage < a.cfg.MinLeverage || req.Leverage > a.cfg.MaxLeverage {
		return domain.Position{}, fmt.Errorf("engine: leverage %d not in [%d, %d]: %w",
			req.Leverage, a.cfg.MinLeverage, a.cfg.MaxLeverage, domain.ErrLeverageOutOfRange)
	}

	mark, ts, err := a.prices.GetPrice(ctx, req.Symbol)
	if err != nil {
		return domain.Position{}, err
	}
	if a.cfg.PriceMaxAge > 0 && time.Since(ts) > a.cfg.PriceMaxAge {
		return domain.Position{}, fmt.Errorf("engine: mark for %s is %s old: %w",
			req.Symbol, time.Since(ts).Truncate(time.Millisecond), domain.ErrPriceStale)
	}

	if req.ClientPrice != nil {
		if err := a.checkClientPrice(*req.ClientPrice, mark); err != nil {
			return domain.Position{}, err
		}
	}

	free, err := a.freeMargin(ctx, req.AccountID)
	if err != nil {
		return domain.Position{}, err
	}
	required := req.Units * mark / float64(req.Leverage)
	if required > free {
		return domain.Position{}, fmt.Errorf("engine: need %.2f margin, %.2f free: %w",
			required, free, domain.ErrInsufficientMargin)
	}

	pos := domain.Position{
		ID:           uuid.New().String(),
		AccountID:    req.AccountID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Units:        req.Units,
		EntryPrice:   mark,
		Leverage:     req.Leverage,
		PostedMargin: required,
		TakeProfit:   req.TakeProfit,
		StopLoss:     req.StopLoss,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
	if err := a.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, err
	}

	a.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.Float64("units", pos.Units),
		slog.Int("leverage", pos.Leverage),
		slog.Float64("entry_price", mark),
		slog.Float64("posted_margin", required),
	)
	return pos, nil
}

func validateRequest(req domain.OrderRequest) error {
	if req.AccountID == "" || req.Symbol == "" {
		return fmt.Errorf("engine: missing account or symbol: %w", domain.ErrInvalidOrder)
	}
	if req.Side != domain.SideLong && req.Side != domain.SideShort {
		return fmt.Errorf("engine: side %q: %w", req.Side, domain.ErrInvalidOrder)
	}
	if req.Units <= 0 || math.IsNaN(req.Units) || math.IsInf(req.Units, 0) {
		return fmt.Errorf("engine: units %v: %w", req.Units, domain.ErrInvalidOrder)
	}
	for _, trig := range []*float64{req.ClientPrice, req.TakeProfit, req.StopLoss} {
		if trig != nil && (*trig <= 0 || math.IsNaN(*trig) || math.IsInf(*trig, 0)) {
			return fmt.Errorf("engine: price %v: %w", *trig, domain.ErrInvalidOrder)
		}
	}
	return nil
}

// checkClientPrice gates the order on the caller-observed price. A price far
// outside the sanity band is malformed input; one within the band but beyond
// the slippage tolerance means the caller is quoting a market that moved.
func (a *Admission) checkClientPrice(client, mark float64) error {
	deviation := math.Abs(client-mark) / mark

	if a.cfg.SanityBandPct > 0 && deviation > a.cfg.SanityBandPct {
		return fmt.Errorf("engine: client price %.8g deviates %.1f%% from mark %.8g: %w",
			client, deviation*100, mark, domain.ErrInvalidOrder)
	}
	if a.cfg.MaxSlippageBps > 0 && deviation*10_000 > a.cfg.MaxSlippageBps {
		return fmt.Errorf("engine: client price %.8g is %.1f bps from mark %.8g: %w",
			client, deviation*10_000, mark, domain.ErrSlippageExceeded)
	}
	return nil
}

func (a *Admission) freeMargin(ctx context.Context, accountID string) (float64, error) {
	acct, err := a.accounts.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	open, err := a.positions.ListOpen(ctx, accountID)
	if err != nil {
		return 0, err
	}

	prices := map[string]float64{}
	if len(open) > 0 {
		symbols := make([]string, 0, len(open))
		seen := make(map[string]struct{}, len(open))
		for _, p := range open {
			if _, dup := seen[p.Symbol]; !dup {
				seen[p.Symbol] = struct{}{}
				symbols = append(symbols, p.Symbol)
			}
		}
		if prices, err = a.prices.GetPrices(ctx, symbols); err != nil {
			return 0, err
		}
	}

	snap := ComputeSnapshot(acct.Balance, open, prices, a.mmr)
	return snap.FreeMargin, nil
}
