package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/lock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// cycleLockTTL bounds how long a crashed replica can block the next cycle.
const cycleLockTTL = 10 * time.Minute

func main() {
	bootstrap.Main("cron-worker", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	cycleLock, closeLock, err := newCycleLock(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeLock()) }()

	files, err := media.NewLocalStore(cfg.Media, logg)
	if err != nil {
		return err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return err
	}
	orphans, err := cron.NewOrphanImageCleanupJob(cron.OrphanImageCleanupJobParams{
		Logger: logg,
		DB:     dbClient,
		Files:  files,
		MinAge: cfg.Cron.OrphanImageMinAge,
		Batch:  cfg.Cron.OrphanImageBatch,
	})
	if err != nil {
		return err
	}

	registry, err := cron.NewRegistry(retention, orphans)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cycleLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	err = service.Run(ctx)
	logg.Info(ctx, "cron worker shutting down gracefully")
	return err
}

// newCycleLock picks the cycle lock. A SQLite deployment is a single process,
// so it skips Redis entirely.
func newCycleLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (lock.Locker, func() error, error) {
	noop := func() error { return nil }
	if cfg.FeatureFlags.UseSQLite {
		return lock.NewKeyedMutex(0), noop, nil
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, noop, err
	}
	locker, err := lock.NewRedisLocker(redisClient, redisClient, lock.RedisOptions{
		Scope: "cron:" + envOrLocal(cfg.App.Env),
		TTL:   cycleLockTTL,
	})
	if err != nil {
		return nil, noop, multierr.Append(err, redisClient.Close())
	}
	return locker, redisClient.Close, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
