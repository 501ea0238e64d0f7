// Command walletd runs the wallet background daemon: it connects the
// postgres store and sweeps stale pending transfers until stopped, optionally
// publishing lifecycle events to kafka and coordinating with sibling
// instances through a redis lease.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CSWHenry/wallet/config"
	"github.com/CSWHenry/wallet/cron"
	"github.com/CSWHenry/wallet/events"
	"github.com/CSWHenry/wallet/postgres"
	"github.com/CSWHenry/wallet/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("walletd failed", zap.Error(err))
	}

	logger.Info("walletd stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", zap.Error(err))
		}
	}()

	opts := []sweeper.Option{
		sweeper.WithLogger(logger.Named("sweeper")),
		sweeper.WithPublisher(publisher),
		sweeper.WithInterval(cfg.SweepInterval),
	}

	if cfg.SweepSchedule != "" {
		schedule, err := cron.Parse(cfg.SweepSchedule)
		if err != nil {
			return err
		}

		opts = append(opts, sweeper.WithSchedule(schedule))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()

		opts = append(opts, sweeper.WithLocker(sweeper.NewRedisLocker(client)))
	}

	sweep := sweeper.New(store, cfg.PendingTTL, opts...)

	logger.Info("walletd started",
		zap.Duration("pending_ttl", cfg.PendingTTL),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.String("sweep_schedule", cfg.SweepSchedule))

	return sweep.Run(ctx)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func newPublisher(cfg config.Config, logger *zap.Logger) events.Publisher {
	if cfg.KafkaTopic == "" || len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}

	logger.Info("publishing lifecycle events to kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic))

	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
