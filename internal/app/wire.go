package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/gogratta/pm-contracts/internal/blob/s3"
	"github.com/gogratta/pm-contracts/internal/cache/redis"
	"github.com/gogratta/pm-contracts/internal/config"
	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/notify"
	"github.com/gogratta/pm-contracts/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. Wire constructs it; the cleanup function Wire returns tears it down.
type Dependencies struct {
	// Stores
	ConditionStore  domain.ConditionStore
	BalanceStore    domain.BalanceStore
	CollateralStore domain.CollateralStore
	EventStore      domain.EventStore
	AuditStore      domain.AuditStore

	// Caches and coordination
	BalanceCache   domain.BalanceCache
	ConditionCache domain.ConditionCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	SignalBus      domain.SignalBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode runs the snapshot/archive pipeline and
// therefore requires object storage.
func needsS3(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "archive":
		return true
	case "full":
		return cfg.Pipeline.Enabled
	default:
		return false
	}
}

// wiring accumulates the dependency graph and the closers that undo it.
type wiring struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	closers []func()
}

func (w *wiring) cleanup() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// Wire constructs the concrete dependency graph for cfg. On success the
// returned cleanup function releases every resource in reverse order; on
// failure Wire has already released whatever it built.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	w := &wiring{cfg: cfg, logger: slog.Default(), deps: &Dependencies{}}

	steps := []func(context.Context) error{
		w.postgres,
		w.redis,
		w.blob,
		w.notify,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			w.cleanup()
			return nil, nil, err
		}
	}
	return w.deps, w.cleanup, nil
}

// postgres wires the primary store. Every mode needs it: the ledger
// restores from and journals to Postgres, and even monitor mode serves
// reads out of it.
func (w *wiring) postgres(ctx context.Context) error {
	pg := w.cfg.Postgres
	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      pg.DSN,
		Host:     pg.Host,
		Port:     pg.Port,
		Database: pg.Database,
		User:     pg.User,
		Password: pg.Password,
		SSLMode:  pg.SSLMode,
		MaxConns: pg.PoolMaxConns,
		MinConns: pg.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("wire: postgres: %w", err)
	}
	w.closers = append(w.closers, client.Close)

	if pg.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			return fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := client.Pool()
	w.deps.ConditionStore = postgres.NewConditionStore(pool)
	w.deps.BalanceStore = postgres.NewBalanceStore(pool)
	w.deps.CollateralStore = postgres.NewCollateralStore(pool)
	w.deps.EventStore = postgres.NewEventStore(pool)
	w.deps.AuditStore = postgres.NewAuditStore(pool)
	return nil
}

// redis wires the hot path: caches, rate limiting, locks, and the signal bus.
func (w *wiring) redis(ctx context.Context) error {
	rd := w.cfg.Redis
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       rd.Addr,
		Password:   rd.Password,
		DB:         rd.DB,
		PoolSize:   rd.PoolSize,
		MaxRetries: rd.MaxRetries,
		TLSEnabled: rd.TLSEnabled,
	})
	if err != nil {
		return fmt.Errorf("wire: redis: %w", err)
	}
	w.closers = append(w.closers, func() { _ = client.Close() })

	w.deps.BalanceCache = redis.NewBalanceCache(client)
	w.deps.ConditionCache = redis.NewConditionCache(client)
	w.deps.RateLimiter = redis.NewRateLimiter(client)
	w.deps.LockManager = redis.NewLockManager(client)
	w.deps.SignalBus = redis.NewSignalBus(client)
	return nil
}

// blob wires object storage and the archiver for the modes that archive.
func (w *wiring) blob(ctx context.Context) error {
	if !needsS3(w.cfg) {
		return nil
	}

	s3 := w.cfg.S3
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       s3.Endpoint,
		Region:         s3.Region,
		Bucket:         s3.Bucket,
		AccessKey:      s3.AccessKey,
		SecretKey:      s3.SecretKey,
		UseSSL:         s3.UseSSL,
		ForcePathStyle: s3.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("wire: s3: %w", err)
	}
	w.closers = append(w.closers, func() { _ = client.Close() })

	w.deps.BlobWriter = s3blob.NewWriter(client)
	reader := s3blob.NewReader(client)
	w.deps.BlobReader = reader
	w.deps.BlobDeleter = reader
	w.deps.Archiver = s3blob.NewArchiver(
		w.deps.BlobWriter,
		w.deps.EventStore,
		w.deps.BalanceStore,
		w.deps.AuditStore,
		w.cfg.Pipeline.ArchiveBatchSize,
	)
	return nil
}

// notify wires the channels that carry ledger alerts. With nothing
// configured the notifier still exists and just drops everything.
func (w *wiring) notify(_ context.Context) error {
	nc := w.cfg.Notify

	var senders []notify.Sender
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(nc.TelegramToken, nc.TelegramChatID))
	}
	if nc.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(nc.DiscordWebhookURL))
	}
	w.deps.Notifier = notify.NewNotifier(senders, nc.Events, w.logger)
	return nil
}
