package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcastro/eventcore/internal/bootstrap"
	"github.com/lcastro/eventcore/internal/controller"
	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/handlers"
	"github.com/lcastro/eventcore/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "eventcore-api", "eventcore")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Event bus ---
	bus := eventbus.New(
		eventbus.WithLogger(app.Logger),
		eventbus.WithRetryOptions(app.RetryOptions()),
		eventbus.WithMetrics(app.Metrics),
	)

	// --- Repositories and services ---
	dlqRepo := postgres.NewDLQRepository(app.Pool)
	dlqService := svcdlq.NewService(dlqRepo, app.Logger, svcdlq.WithMetrics(app.Metrics))
	pointsRepo := postgres.NewPointsRepository(app.Pool)
	evaluationRepo := postgres.NewEvaluationRepository(app.Pool, bus, dlqService)

	// --- Event handlers ---
	llm := handlers.NewMockLLMClient("mock-llm")
	challengeStore := handlers.NewMemoryChallengeStore()
	challengeH := handlers.NewChallengeGenerationHandler(llm, challengeStore, app.Logger)
	gamificationH := handlers.NewGamificationHandler(pointsRepo, app.Logger)

	// The LLM is the flaky downstream; put a breaker in front of it.
	bus.SubscribeAs(handlers.HandlerChallengeGeneration, evaluation.EventCompleted,
		eventbus.WithBreaker("challenge-llm", challengeH.Handle))
	gamificationH.Register(bus, evaluation.EventCompleted)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:           app.Pool,
		RedisClient:    app.Redis,
		Bus:            bus,
		DLQService:     dlqService,
		EvaluationRepo: evaluationRepo,
		Metrics:        app.Metrics,
		CORSConfig:     app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
