package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/journal"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
	"github.com/alanyoungcy/updownbot/internal/store/sqlite"
)

// Dependencies bundles the optional infrastructure the trading loops use.
// Every field except Notifier may be nil when its backend is disabled.
type Dependencies struct {
	// Journal is the queued audit trail; nil when journal.driver is "none".
	Journal *journal.Async

	// Redis
	SignalBus   domain.SignalBus
	StateCache  domain.StateCache
	LockManager domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter

	// Notifications
	Notifier *notify.Notifier
}

// Stats returns the journal's daily aggregates reader, or nil.
func (d *Dependencies) Stats() domain.StatsReader {
	if d.Journal == nil {
		return nil
	}
	return d.Journal
}

// Wire constructs the configured backends and returns them together with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Journal ---
	inner, closeInner, err := openJournal(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: journal: %w", err)
	}
	if closeInner != nil {
		closers = append(closers, closeInner)
	}
	if inner != nil {
		deps.Journal = journal.NewAsync(inner, cfg.Journal.QueueSize, logger)
		// Closing the async journal flushes the queue and closes the store.
		closers = append(closers, func() {
			if err := deps.Journal.Close(); err != nil {
				logger.Warn("journal close failed", slog.String("error", err.Error()))
			}
		})
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
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
		logger.InfoContext(ctx, "redis connected", slog.String("addr", redisClient.Addr()))

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.StateCache = redis.NewStateCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archive uploads may fail",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
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

	return deps, cleanup, nil
}

// openJournal opens the configured journal store. The returned close func
// releases resources the store does not own itself (the postgres pool).
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Journal, func(), error) {
	switch strings.ToLower(cfg.Journal.Driver) {
	case "none":
		logger.InfoContext(ctx, "trade journal disabled")
		return nil, nil, nil

	case "postgres":
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
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, nil, fmt.Errorf("migrations: %w", err)
			}
		}
		logger.InfoContext(ctx, "trade journal on postgres", slog.String("host", cfg.Postgres.Host))
		return postgres.NewJournal(pgClient.Pool()), pgClient.Close, nil

	default:
		j, err := sqlite.Open(cfg.Journal.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.InfoContext(ctx, "trade journal on sqlite", slog.String("path", cfg.Journal.SQLitePath))
		return j, nil, nil
	}
}
