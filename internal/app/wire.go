package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/xness/riskcore/internal/blob/s3"
	"github.com/xness/riskcore/internal/cache/redis"
	"github.com/xness/riskcore/internal/config"
	"github.com/xness/riskcore/internal/domain"
	"github.com/xness/riskcore/internal/engine"
	"github.com/xness/riskcore/internal/notify"
	"github.com/xness/riskcore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	TickStore     domain.TickStore
	PositionStore domain.PositionStore
	AccountStore  domain.AccountStore

	// Caches
	PriceCache    domain.PriceCache
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage, nil when archival is disabled.
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.TickArchiver

	// Risk engine
	Maintenance engine.MaintenanceFunc
	Closer      *engine.Closer
	Admission   *engine.Admission

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode runs the archiver, which is the only
// consumer of object storage.
func needsS3(mode string) bool {
	switch strings.ToLower(mode) {
	case "feed", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TickStore = postgres.NewTickStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.AccountStore = postgres.NewAccountStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (archiver modes only) ---
	if cfg.Archive.Enabled && needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewTickArchiver(
			deps.BlobWriter,
			postgres.NewTickStore(pool),
			retention,
			cfg.Archive.Interval.Duration,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Risk engine ---
	deps.Maintenance = engine.TieredMaintenanceRate
	if cfg.Risk.MaintenanceRate > 0 {
		deps.Maintenance = engine.FlatMaintenanceRate(cfg.Risk.MaintenanceRate)
	}

	deps.Closer = engine.NewCloser(
		deps.PositionStore,
		deps.AccountStore,
		deps.LockManager,
		deps.SignalBus,
		deps.Notifier,
		cfg.Risk.CloseLockTTL.Duration,
		logger,
	)
	deps.Admission = engine.NewAdmission(
		deps.AccountStore,
		deps.PositionStore,
		deps.PriceCache,
		engine.AdmissionConfig{
			MinLeverage:    cfg.Risk.MinLeverage,
			MaxLeverage:    cfg.Risk.MaxLeverage,
			PriceMaxAge:    cfg.Risk.PriceMaxAge.Duration,
			MaxSlippageBps: cfg.Risk.MaxSlippageBps,
			SanityBandPct:  cfg.Risk.SanityBandPct,
		},
		deps.Maintenance,
		logger,
	)

	return deps, cleanup, nil
}
