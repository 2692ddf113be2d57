package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/pmradar/pmradar/internal/blob/s3"
	"github.com/pmradar/pmradar/internal/cache/memory"
	"github.com/pmradar/pmradar/internal/cache/redis"
	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
	"github.com/pmradar/pmradar/internal/notify"
	"github.com/pmradar/pmradar/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Snapshots domain.SnapshotRepository
	Patterns  domain.PatternStore
	Matches   domain.MatchStore

	Counters domain.CounterCache
	Alerts   domain.AlertCache
	Locks    domain.LockManager

	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations from the given
// configuration. Redis and S3 are optional: an empty Redis address selects
// the in-process cache and lock implementations, an empty S3 bucket disables
// archival.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

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
	deps.Snapshots = postgres.NewSnapshotStore(pool)
	deps.Patterns = postgres.NewPatternStore(pool)
	deps.Matches = postgres.NewMatchStore(pool)

	if cfg.Redis.Addr != "" {
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

		deps.Counters = redis.NewCounterCache(redisClient)
		deps.Alerts = redis.NewAlertCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	} else {
		logger.Info("redis not configured, using in-process caches and locks")
		deps.Counters = memory.NewCounterCache()
		deps.Alerts = memory.NewAlertCache()
		deps.Locks = memory.NewLockManager()
	}

	if cfg.S3.Bucket != "" {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	var channels []notify.Channel
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegram(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		channels = append(channels, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(channels, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
