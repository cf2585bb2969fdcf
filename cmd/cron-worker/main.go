package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stitchpay-backend/internal/bootstrap"
	"github.com/angelmondragon/stitchpay-backend/internal/cron"
	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/instance"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/metrics"
	"github.com/angelmondragon/stitchpay-backend/pkg/migrate"
	"github.com/angelmondragon/stitchpay-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit (for external schedulers)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	if err := run(logg, *once); err != nil {
		logg.Error(context.Background(), "cron worker stopped", err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = "cron-worker"
	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	services, err := bootstrap.Build(ctx, bootstrap.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "services", services.Close)

	service, err := newCronService(cfg, logg, dbClient, redisClient, services)
	if err != nil {
		return err
	}

	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func newCronService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, services *bootstrap.Services) (*cron.Service, error) {
	autoApproval, err := cron.NewAutoApprovalJob(cron.AutoApprovalJobParams{
		Logger:  logg,
		Sweeper: services.Sweeper,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewReceiptRetentionJob(cron.ReceiptRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: services.Receipts,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(autoApproval, retention)
	if err != nil {
		return nil, err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL / 2,
	})
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
