// Package engine holds the risk core: snapshot computation, liquidation
// enforcement, conditional order triggering, and order admission.
package engine

import (
	"math"

	"github.com/xness/riskcore/internal/domain"
)

// MaintenanceFunc returns the maintenance margin rate for a leverage tier.
type MaintenanceFunc func(leverage int) float64

// TieredMaintenanceRate is the default tier schedule: higher leverage keeps a
// larger fraction of notional as the liquidation buffer.
func TieredMaintenanceRate(leverage int) float64 {
	switch {
	case leverage >= 100:
		return 0.01
	case leverage >= 20:
		return 0.009
	case leverage >= 10:
		return 0.007
	default:
		return 0.005
	}
}

// FlatMaintenanceRate returns a MaintenanceFunc that ignores leverage and
// always applies the given rate. Used when an operator overrides the tier
// schedule in config.
func FlatMaintenanceRate(rate float64) MaintenanceFunc {
	return func(int) float64 { return rate }
}

// ComputeSnapshot derives the margin state of an account from its realized
// balance, its open positions, and the latest marks. It is a pure function:
// positions whose symbol has no entry in prices are excluded from every
// aggregate rather than valued at a stale or zero mark.
func ComputeSnapshot(balance float64, positions []domain.Position, prices map[string]float64, mmr MaintenanceFunc) domain.Snapshot {
	if mmr == nil {
		mmr = TieredMaintenanceRate
	}

	var unrealized, used, maintenance float64
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		mark, ok := prices[p.Symbol]
		if !ok || mark <= 0 {
			continue
		}
		unrealized += p.UnrealizedPnL(mark)
		used += p.MarginAt(mark)
		maintenance += p.Notional(mark) * mmr(p.Leverage)
	}

	equity := balance + unrealized

	level := math.Inf(1)
	if used > 0 {
		level = equity / used
	}

	return domain.Snapshot{
		Balance:       balance,
		UnrealizedPnL: unrealized,
		Equity:        equity,
		UsedMargin:    used,
		FreeMargin:    equity - used,
		Maintenance:   maintenance,
		MarginLevel:   level,
	}
}
