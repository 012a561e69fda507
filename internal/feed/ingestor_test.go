package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xness/riskcore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventLog records the interleaving of cache writes and bus publishes so the
// ordering guarantee between them is observable.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) record(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

type loggingPriceCache struct {
	log  *eventLog
	fail bool
}

func (c *loggingPriceCache) SetPrice(_ context.Context, symbol string, _ float64, _ time.Time) error {
	if c.fail {
		return errors.New("cache down")
	}
	c.log.record("cache:" + symbol)
	return nil
}

func (c *loggingPriceCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrPriceUnavailable
}

func (c *loggingPriceCache) GetPrices(context.Context, []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type loggingBus struct {
	log *eventLog
}

func (b *loggingBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.log.record("publish:" + channel)
	return nil
}

func (b *loggingBus) Subscribe(context.Context, ...string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal)
	close(ch)
	return ch, nil
}

type fakeTickStore struct {
	mu       sync.Mutex
	batches  [][]domain.Tick
	failNext int
}

func (s *fakeTickStore) InsertBatch(_ context.Context, ticks []domain.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("store down")
	}
	batch := make([]domain.Tick, len(ticks))
	copy(batch, ticks)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeTickStore) ListBySymbol(context.Context, string, int) ([]domain.Tick, error) {
	return nil, nil
}

func (s *fakeTickStore) ListBefore(context.Context, time.Time) ([]domain.Tick, error) {
	return nil, nil
}

func (s *fakeTickStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeTickStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func tick(symbol string, price float64) domain.Tick {
	return domain.Tick{Time: time.Now().UTC(), Symbol: symbol, Price: price, Quantity: 1}
}

func TestHandleTradeCachesBeforePublishing(t *testing.T) {
	log := &eventLog{}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, &fakeTickStore{}, 100, time.Second, testLogger())

	in.HandleTrade(context.Background(), tick("BTCUSDT", 30000))

	entries := log.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "cache:BTCUSDT", entries[0], "the mark must be queryable before the tick is announced")
	assert.Equal(t, "publish:trades", entries[1])
	assert.Equal(t, 1, in.PendingCount())
}

func TestHandleTradeDropsTickWhenCacheWriteFails(t *testing.T) {
	log := &eventLog{}
	in := NewIngestor(&loggingPriceCache{log: log, fail: true}, &loggingBus{log: log}, &fakeTickStore{}, 100, time.Second, testLogger())

	in.HandleTrade(context.Background(), tick("BTCUSDT", 30000))

	assert.Empty(t, log.all(), "no publish when the cache write failed")
	assert.Equal(t, 0, in.PendingCount())
}

func TestHandleTradeCanonicalizesSymbol(t *testing.T) {
	log := &eventLog{}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, &fakeTickStore{}, 100, time.Second, testLogger())

	in.HandleTrade(context.Background(), tick("btcusd", 30000))

	entries := log.all()
	require.NotEmpty(t, entries)
	assert.Equal(t, "cache:BTCUSDT", entries[0])
}

func TestHandleTradeDropsMalformedPrices(t *testing.T) {
	log := &eventLog{}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, &fakeTickStore{}, 100, time.Second, testLogger())
	ctx := context.Background()

	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		in.HandleTrade(ctx, tick("BTCUSDT", price))
	}

	assert.Empty(t, log.all())
	assert.Equal(t, 0, in.PendingCount())
}

func TestHandleTradeFlushesFullBatch(t *testing.T) {
	log := &eventLog{}
	store := &fakeTickStore{}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, store, 3, time.Second, testLogger())
	ctx := context.Background()

	in.HandleTrade(ctx, tick("BTCUSDT", 30000))
	in.HandleTrade(ctx, tick("BTCUSDT", 30001))
	assert.Equal(t, 0, store.batchCount(), "below batch size, nothing flushes")

	in.HandleTrade(ctx, tick("BTCUSDT", 30002))
	require.Equal(t, 1, store.batchCount())
	assert.Len(t, store.batches[0], 3)
	assert.Equal(t, 0, in.PendingCount())

	// Either the whole batch lands or none of it does, so the next batch
	// starts clean.
	in.HandleTrade(ctx, tick("BTCUSDT", 30003))
	assert.Equal(t, 1, in.PendingCount())
}

func TestFlushFailureKeepsBatchForRetry(t *testing.T) {
	log := &eventLog{}
	store := &fakeTickStore{failNext: 1}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, store, 2, time.Second, testLogger())
	ctx := context.Background()

	in.HandleTrade(ctx, tick("BTCUSDT", 30000))
	in.HandleTrade(ctx, tick("BTCUSDT", 30001))

	// The flush failed; the ticks stay pending and further ticks queue
	// behind them while the backoff window is open.
	assert.Equal(t, 0, store.batchCount())
	assert.Equal(t, 2, in.PendingCount())

	in.HandleTrade(ctx, tick("BTCUSDT", 30002))
	assert.Equal(t, 0, store.batchCount(), "retry is deferred until the backoff elapses")
	assert.Equal(t, 3, in.PendingCount())
}

func TestFlushBackoffStaysCappedAfterManyFailures(t *testing.T) {
	store := &fakeTickStore{failNext: 1}
	in := NewIngestor(&loggingPriceCache{log: &eventLog{}}, &loggingBus{log: &eventLog{}}, store, 100, time.Second, testLogger())

	in.mu.Lock()
	in.pending = append(in.pending, tick("BTCUSDT", 30000))
	in.failures = 34
	in.retryAt = time.Now().Add(-time.Minute)
	in.mu.Unlock()

	before := time.Now()
	in.flush(context.Background())

	in.mu.Lock()
	retryAt := in.retryAt
	in.mu.Unlock()

	assert.True(t, retryAt.After(before), "retry must stay in the future no matter how many flushes failed")
	assert.LessOrEqual(t, retryAt.Sub(before), maxFlushRetryDelay+time.Second)
	assert.Equal(t, 1, in.PendingCount())
}

func TestHandleTradeLogsDroppedTrades(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	in := NewIngestor(&loggingPriceCache{log: &eventLog{}}, &loggingBus{log: &eventLog{}}, &fakeTickStore{}, 100, time.Second, logger)
	ctx := context.Background()

	in.HandleTrade(ctx, tick("BTCUSDT", math.NaN()))
	assert.Contains(t, buf.String(), "dropping trade with invalid price")

	buf.Reset()
	in.HandleTrade(ctx, tick("", 30000))
	assert.Contains(t, buf.String(), "dropping trade without symbol")
}

func TestRunFinalFlushOnCancel(t *testing.T) {
	log := &eventLog{}
	store := &fakeTickStore{}
	in := NewIngestor(&loggingPriceCache{log: log}, &loggingBus{log: log}, store, 100, time.Hour, testLogger())

	in.HandleTrade(context.Background(), tick("BTCUSDT", 30000))
	require.Equal(t, 1, in.PendingCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := in.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, store.batchCount(), "pending ticks are flushed on shutdown")
	assert.Equal(t, 0, in.PendingCount())
}
