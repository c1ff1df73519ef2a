package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lcastro/eventcore/internal/bootstrap"
	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/handlers"
	infraRedis "github.com/lcastro/eventcore/internal/infrastructure/redis"
	"github.com/lcastro/eventcore/internal/repository/postgres"
)

// sweepLockKey serializes the dead letter sweep across worker instances.
const sweepLockKey = "dlq:retry-sweep"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "eventcore-worker", "eventcore_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Event bus with the same subscriber set as the API ---
	// Re-deliveries run through the real handlers, so the worker needs them
	// registered under the same ids the entries were stored with.
	bus := eventbus.New(
		eventbus.WithLogger(app.Logger),
		eventbus.WithRetryOptions(app.RetryOptions()),
		eventbus.WithMetrics(app.Metrics),
	)

	dlqRepo := postgres.NewDLQRepository(app.Pool)
	dlqService := svcdlq.NewService(dlqRepo, app.Logger, svcdlq.WithMetrics(app.Metrics))
	pointsRepo := postgres.NewPointsRepository(app.Pool)

	llm := handlers.NewMockLLMClient("mock-llm")
	challengeStore := handlers.NewMemoryChallengeStore()
	challengeH := handlers.NewChallengeGenerationHandler(llm, challengeStore, app.Logger)
	gamificationH := handlers.NewGamificationHandler(pointsRepo, app.Logger)

	bus.SubscribeAs(handlers.HandlerChallengeGeneration, evaluation.EventCompleted,
		eventbus.WithBreaker("challenge-llm", challengeH.Handle))
	gamificationH.Register(bus, evaluation.EventCompleted)

	workerCfg := app.Config.Worker
	app.Logger.Info().
		Dur("sweep_interval", workerCfg.SweepInterval).
		Int("batch_size", workerCfg.BatchSize).
		Msg("Worker started")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Dead letter sweep loop.
	g.Go(func() error {
		return runSweeper(gCtx, app, dlqRepo, dlqService, bus)
	})

	// 2. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runSweeper(
	ctx context.Context,
	app *bootstrap.App,
	dlqRepo *postgres.DLQRepository,
	dlqService *svcdlq.Service,
	bus *eventbus.Bus,
) error {
	ticker := time.NewTicker(app.Config.Worker.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		sweep(ctx, app, dlqRepo, dlqService, bus)
	}
}

func sweep(
	ctx context.Context,
	app *bootstrap.App,
	dlqRepo *postgres.DLQRepository,
	dlqService *svcdlq.Service,
	bus *eventbus.Bus,
) {
	logger := app.Logger

	lock := infraRedis.NewDistributedLock(app.Redis, sweepLockKey, app.Config.Worker.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acquire sweep lock")
		app.Metrics.SweepRuns.WithLabelValues("lock_error").Inc()
		return
	}
	if !acquired {
		logger.Debug().Msg("Sweep lock held by another instance, skipping")
		app.Metrics.SweepRuns.WithLabelValues("skipped").Inc()
		return
	}
	defer lock.Release(ctx)

	start := time.Now()

	pending := dlq.StatusPending
	report := dlqService.RetryEvents(ctx, dlq.Filter{
		Status: &pending,
		Limit:  app.Config.Worker.BatchSize,
	}, bus)

	app.Metrics.SweepDuration.Observe(time.Since(start).Seconds())
	app.Metrics.SweepRuns.WithLabelValues("completed").Inc()

	if report.Total > 0 {
		logger.Info().
			Int("total", report.Total).
			Int("successful", report.Successful).
			Int("failed", report.Failed).
			Msg("Dead letter sweep finished")
	}

	reportQueueDepth(ctx, logger, app, dlqRepo)
}

func reportQueueDepth(ctx context.Context, logger zerolog.Logger, app *bootstrap.App, dlqRepo *postgres.DLQRepository) {
	counts, err := dlqRepo.CountByStatus(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count dead letter entries")
		return
	}
	for _, status := range []dlq.Status{dlq.StatusPending, dlq.StatusRetrying, dlq.StatusResolved, dlq.StatusFailed} {
		app.Metrics.DLQDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
