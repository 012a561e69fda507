package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/xness/riskcore/internal/domain"
)

const (
	// flushRetryDelay is the base delay before retrying a failed batch flush.
	flushRetryDelay = time.Second

	// maxFlushRetryDelay caps the backoff between flush retries.
	maxFlushRetryDelay = 30 * time.Second
)

// Ingestor is the single writer on the hot tick path. Per trade it updates
// the price cache, then publishes the tick, then appends it to the pending
// batch for durable persistence. The cache write strictly precedes the
// publish so no subscriber ever observes a tick whose mark is not yet
// queryable.
type Ingestor struct {
	cache  domain.PriceCache
	bus    domain.SignalBus
	ticks  domain.TickStore
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	mu       sync.Mutex
	pending  []domain.Tick
	failures int
	retryAt  time.Time
}

// NewIngestor creates an Ingestor flushing batches of batchSize ticks, or
// whatever accumulated after flushInterval, whichever comes first.
func NewIngestor(cache domain.PriceCache, bus domain.SignalBus, ticks domain.TickStore, batchSize int, flushInterval time.Duration, logger *slog.Logger) *Ingestor {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Ingestor{
		cache:         cache,
		bus:           bus,
		ticks:         ticks,
		logger:        logger.With(slog.String("component", "ingestor")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		pending:       make([]domain.Tick, 0, batchSize),
	}
}

// HandleTrade processes one raw trade from the feed. Non-finite or
// non-positive prices are dropped and logged. The symbol is canonicalized
// before any downstream effect.
func (in *Ingestor) HandleTrade(ctx context.Context, tick domain.Tick) {
	if math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) || tick.Price <= 0 {
		in.logger.Debug("dropping trade with invalid price",
			slog.String("symbol", tick.Symbol),
			slog.Float64("price", tick.Price),
		)
		return
	}
	tick.Symbol = domain.CanonicalSymbol(tick.Symbol)
	if tick.Symbol == "" {
		in.logger.Debug("dropping trade without symbol")
		return
	}
	if tick.Time.IsZero() {
		tick.Time = time.Now().UTC()
	}

	// Cache first. If the mark cannot be recorded the tick is not announced,
	// preserving the rule that an announced price is always queryable.
	if err := in.cache.SetPrice(ctx, tick.Symbol, tick.Price, tick.Time); err != nil {
		in.logger.Warn("price cache write failed, dropping tick",
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	if payload, err := json.Marshal(domain.Event{Type: domain.EventTick, Payload: tick}); err == nil {
		if err := in.bus.Publish(ctx, domain.ChannelTrades, payload); err != nil {
			in.logger.Warn("tick publish failed",
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	in.mu.Lock()
	in.pending = append(in.pending, tick)
	full := len(in.pending) >= in.batchSize
	in.mu.Unlock()

	if full {
		in.flush(ctx)
	}
}

// flush persists the pending batch. On failure the batch is kept for retry
// with exponential backoff; new ticks keep accumulating behind it.
func (in *Ingestor) flush(ctx context.Context) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.pending) == 0 {
		return
	}
	if in.failures > 0 && time.Now().Before(in.retryAt) {
		return
	}

	if err := in.ticks.InsertBatch(ctx, in.pending); err != nil {
		in.failures++
		// Cap the exponent before shifting so a long outage cannot overflow
		// the duration. 1s << 5 already exceeds maxFlushRetryDelay.
		shift := in.failures - 1
		if shift > 5 {
			shift = 5
		}
		delay := flushRetryDelay << shift
		if delay > maxFlushRetryDelay {
			delay = maxFlushRetryDelay
		}
		in.retryAt = time.Now().Add(delay)
		in.logger.Error("tick batch flush failed, will retry",
			slog.Int("batch", len(in.pending)),
			slog.Int("failures", in.failures),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		return
	}

	in.logger.Debug("tick batch flushed", slog.Int("batch", len(in.pending)))
	in.pending = in.pending[:0]
	in.failures = 0
	in.retryAt = time.Time{}
}

// Run flushes on the configured interval until ctx is cancelled, then makes
// a final best-effort flush of whatever is still pending.
func (in *Ingestor) Run(ctx context.Context) error {
	ticker := time.NewTicker(in.flushInterval)
	defer ticker.Stop()

	in.logger.Info("ingestor started",
		slog.Int("batch_size", in.batchSize),
		slog.Duration("flush_interval", in.flushInterval),
	)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			in.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			in.flush(ctx)
		}
	}
}

// PendingCount reports how many ticks await persistence.
func (in *Ingestor) PendingCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}
