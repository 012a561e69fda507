package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xness/riskcore/internal/domain"
	"github.com/xness/riskcore/internal/engine"
	"github.com/xness/riskcore/internal/feed"
	"github.com/xness/riskcore/internal/server"
	"github.com/xness/riskcore/internal/server/handler"
	"github.com/xness/riskcore/internal/server/ws"
	"github.com/xness/riskcore/internal/service"
)

// FeedMode runs tick ingestion: the upstream WebSocket feed, the ingestor's
// batch flusher, and the tick archiver when enabled.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	return g.Wait()
}

// RiskMode runs enforcement only: the liquidation scan and the conditional
// order watcher.
func (a *App) RiskMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startRisk(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the HTTP and WebSocket API surface only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything in one process: ingestion, enforcement, and the
// API surface.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	a.startRisk(ctx, g, deps)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	symbols := make([]string, 0, len(a.cfg.Feed.Symbols))
	for _, s := range a.cfg.Feed.Symbols {
		if canon := domain.CanonicalSymbol(s); canon != "" {
			symbols = append(symbols, canon)
		}
	}

	ingestor := feed.NewIngestor(
		deps.PriceCache,
		deps.SignalBus,
		deps.TickStore,
		a.cfg.Feed.BatchSize,
		a.cfg.Feed.FlushInterval.Duration,
		a.logger,
	)
	wsFeed := feed.NewBinanceWSFeed(a.cfg.Feed.WsURL, symbols, ingestor.HandleTrade, a.logger)

	g.Go(func() error { return wsFeed.Run(ctx) })
	g.Go(func() error { return ingestor.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}
}

func (a *App) startRisk(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	liquidator := engine.NewLiquidator(
		a.cfg.Account.ID,
		a.cfg.Risk.LiquidationInterval.Duration,
		deps.AccountStore,
		deps.PositionStore,
		deps.PriceCache,
		deps.SnapshotCache,
		deps.Closer,
		deps.Maintenance,
		a.logger,
	)
	watcher := engine.NewWatcher(
		a.cfg.Account.ID,
		deps.SignalBus,
		deps.PositionStore,
		deps.Closer,
		a.logger,
	)

	g.Go(func() error { return liquidator.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	trading := service.NewTradingService(
		deps.AccountStore,
		deps.PositionStore,
		deps.TickStore,
		deps.PriceCache,
		deps.SnapshotCache,
		deps.SignalBus,
		deps.RateLimiter,
		deps.Admission,
		deps.Closer,
		deps.Maintenance,
		a.cfg.Risk.OrdersPerMinute,
		a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, trading, a.cfg.Account.ID, a.logger)

	startedAt := time.Now().UTC()
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(startedAt, a.logger),
		Orders:    handler.NewOrderHandler(a.cfg.Account.ID, trading, a.logger),
		Positions: handler.NewPositionHandler(a.cfg.Account.ID, trading, a.logger),
		Account:   handler.NewAccountHandler(a.cfg.Account.ID, trading, a.logger),
		Ticks:     handler.NewTickHandler(trading, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
