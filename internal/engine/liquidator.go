package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/xness/riskcore/internal/domain"
)

// Liquidator periodically evaluates the account's open positions against the
// freshest marks and force-closes whatever no longer meets margin.
//
// Enforcement runs in two passes. The first closes every position whose own
// mark-to-market loss consumed the margin locked for it at the current mark.
// The second checks the account as a whole: while equity no longer covers the
// maintenance requirement, the largest exposure is closed and the account is
// re-evaluated, so one deeply distressed position cannot hide behind a
// winner.
type Liquidator struct {
	accountID string
	interval  time.Duration
	accounts  domain.AccountStore
	positions domain.PositionStore
	prices    domain.PriceCache
	snapshots domain.SnapshotCache
	closer    *Closer
	mmr       MaintenanceFunc
	logger    *slog.Logger
}

// NewLiquidator creates a Liquidator for one account. snapshots may be nil.
func NewLiquidator(
	accountID string,
	interval time.Duration,
	accounts domain.AccountStore,
	positions domain.PositionStore,
	prices domain.PriceCache,
	snapshots domain.SnapshotCache,
	closer *Closer,
	mmr MaintenanceFunc,
	logger *slog.Logger,
) *Liquidator {
	if interval <= 0 {
		interval = time.Second
	}
	if mmr == nil {
		mmr = TieredMaintenanceRate
	}
	return &Liquidator{
		accountID: accountID,
		interval:  interval,
		accounts:  accounts,
		positions: positions,
		prices:    prices,
		snapshots: snapshots,
		closer:    closer,
		mmr:       mmr,
		logger:    logger.With(slog.String("component", "liquidator")),
	}
}

// Run evaluates on the configured interval until ctx is cancelled. A failed
// sweep is logged and retried on the next tick; enforcement must keep running
// through transient store or cache trouble.
func (l *Liquidator) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("liquidator started", slog.Duration("interval", l.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Sweep(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one full enforcement pass and refreshes the snapshot mirror.
func (l *Liquidator) Sweep(ctx context.Context) error {
	open, err := l.positions.ListOpen(ctx, l.accountID)
	if err != nil {
		return err
	}

	prices, err := l.marks(ctx, open)
	if err != nil {
		return err
	}

	// Pass 1: per-position margin breach at the current mark.
	for _, p := range open {
		mark, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		if p.UnrealizedPnL(mark) <= -p.MarginAt(mark) {
			l.forceClose(ctx, p.ID, mark)
		}
	}

	// Pass 2: account-level maintenance breach. Re-read state after pass 1
	// so already-settled positions do not count twice.
	for {
		open, err = l.positions.ListOpen(ctx, l.accountID)
		if err != nil {
			return err
		}
		acct, err := l.accounts.Get(ctx, l.accountID)
		if err != nil {
			return err
		}
		prices, err = l.marks(ctx, open)
		if err != nil {
			return err
		}

		snap := ComputeSnapshot(acct.Balance, open, prices, l.mmr)
		if snap.Healthy() {
			l.mirror(ctx, snap)
			return nil
		}

		victim, ok := largestExposure(open, prices)
		if !ok {
			// Nothing priced to close; try again next tick.
			l.mirror(ctx, snap)
			return nil
		}
		l.logger.Warn("account under maintenance, closing largest exposure",
			slog.Float64("equity", snap.Equity),
			slog.Float64("maintenance", snap.Maintenance),
			slog.String("position_id", victim.ID),
		)
		l.forceClose(ctx, victim.ID, prices[victim.Symbol])
	}
}

func (l *Liquidator) marks(ctx context.Context, open []domain.Position) (map[string]float64, error) {
	symbols := make([]string, 0, len(open))
	seen := make(map[string]struct{}, len(open))
	for _, p := range open {
		if _, dup := seen[p.Symbol]; dup {
			continue
		}
		seen[p.Symbol] = struct{}{}
		symbols = append(symbols, p.Symbol)
	}
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	return l.prices.GetPrices(ctx, symbols)
}

// forceClose settles one position under liquidation rules. Lost races are
// ordinary here: another evaluator holding the lock or having already closed
// the position means the work is done.
func (l *Liquidator) forceClose(ctx context.Context, positionID string, mark float64) {
	_, err := l.closer.Close(ctx, positionID, mark, domain.CloseReasonLiquidation)
	if err != nil && !errors.Is(err, domain.ErrLockHeld) && !errors.Is(err, domain.ErrAlreadyClosed) {
		l.logger.Error("forced close failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Liquidator) mirror(ctx context.Context, snap domain.Snapshot) {
	if l.snapshots == nil {
		return
	}
	if err := l.snapshots.Set(ctx, l.accountID, snap); err != nil {
		l.logger.Debug("snapshot mirror write failed", slog.String("error", err.Error()))
	}
}

func largestExposure(open []domain.Position, prices map[string]float64) (domain.Position, bool) {
	priced := make([]domain.Position, 0, len(open))
	for _, p := range open {
		if mark, ok := prices[p.Symbol]; ok && mark > 0 {
			priced = append(priced, p)
		}
	}
	if len(priced) == 0 {
		return domain.Position{}, false
	}
	sort.Slice(priced, func(i, j int) bool {
		return priced[i].Notional(prices[priced[i].Symbol]) > priced[j].Notional(prices[priced[j].Symbol])
	})
	return priced[0], true
}
