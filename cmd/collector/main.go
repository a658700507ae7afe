package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"photokeeper/internal/cache"
	"photokeeper/internal/config"
	"photokeeper/internal/database"
	"photokeeper/internal/gc"
	"photokeeper/internal/jobs"
	"photokeeper/internal/log"
	"photokeeper/internal/queue"
	"photokeeper/internal/repository"
	"photokeeper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	if err := database.Migrate(cfg.Postgres.DSN); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	ledgerRepo := repository.NewLedgerRepository(dbPool)
	contentRepo := repository.NewContentRepository(dbPool)
	quarantineRepo := repository.NewQuarantineRepository(dbPool)

	collector := gc.NewCollector(ledgerRepo, contentRepo, objectStore, quarantineRepo, cfg.GC, cfg.Storage.QuarantinePrefix, logger)

	scheduler := jobs.NewScheduler(collector, cfg.GC, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	hostname, _ := os.Hostname()
	consumer := queue.NewConsumer(
		redisClient,
		cfg.GC.NudgeStream,
		cfg.GC.NudgeGroup,
		hostname,
		time.Minute,
		logger,
		queue.NewNudgeHandler(collector, logger),
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure consumer group failed")
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	go func() {
		if err := consumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.Fatal().Err(err).Msg("nudge consumer failed")
		}
	}()

	waitForShutdown(logger, scheduler, stopConsumer, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, scheduler *jobs.Scheduler, stopConsumer context.CancelFunc, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	stopConsumer()
	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("collector exited cleanly")
}
