package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/infrastructure/config"
	"github.com/lcastro/eventcore/internal/infrastructure/observability"
	customMW "github.com/lcastro/eventcore/internal/middleware"
)

type RouterDeps struct {
	Pool           *pgxpool.Pool
	RedisClient    *redis.Client
	Bus            *eventbus.Bus
	DLQService     *svcdlq.Service
	EvaluationRepo evaluation.Repository
	Metrics        *observability.Metrics
	CORSConfig     config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	dlqH := NewDLQController(deps.DLQService, deps.Bus)
	metricsH := NewMetricsController(deps.Bus)
	evaluationH := NewEvaluationController(deps.EvaluationRepo)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Bulk retries hit storage and every subscribed handler; keep
		// operators from hammering them.
		retryLimit := customMW.RateLimit(30, time.Minute)

		// Dead letter queue
		r.Get("/dlq", dlqH.List)
		r.With(retryLimit).Post("/dlq/retry", dlqH.RetryAll)
		r.With(retryLimit).Post("/dlq/{id}/retry", dlqH.Retry)
		r.Post("/dlq/{id}/resolve", dlqH.Resolve)
		r.Delete("/dlq/{id}", dlqH.Delete)

		// Delivery counters
		r.Get("/metrics/events", metricsH.Events)
		r.Post("/metrics/events/reset", metricsH.Reset)

		// Evaluations
		r.Post("/evaluations", evaluationH.Create)
		r.Get("/evaluations/{id}", evaluationH.Get)
		r.Post("/evaluations/{id}/scores", evaluationH.RecordScore)
		r.Post("/evaluations/{id}/complete", evaluationH.Complete)
		r.Post("/evaluations/{id}/archive", evaluationH.Archive)
	})

	return r
}
