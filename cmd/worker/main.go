package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/config"
	amqpdelivery "github.com/Harsh-BH/sentinel-judge/internal/delivery/amqp"
	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/executor"
	"github.com/Harsh-BH/sentinel-judge/internal/grader"
	"github.com/Harsh-BH/sentinel-judge/internal/language"
	"github.com/Harsh-BH/sentinel-judge/internal/pool"
	"github.com/Harsh-BH/sentinel-judge/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/sentinel-judge/internal/repository/redis"
	"github.com/Harsh-BH/sentinel-judge/internal/template"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting Sentinel judge worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	if err := postgres.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	backend, err := executor.NewBackend(cfg.Sandbox.Backend, cfg.Sandbox.NsjailPath, cfg.Sandbox.NsjailConfig)
	if err != nil {
		logger.Fatal("Failed to select sandbox backend", zap.Error(err))
	}
	exec := executor.NewExecutor(backend, language.Default(), logger,
		executor.WithWorkRoot(cfg.Sandbox.WorkRoot),
		executor.WithMaxConcurrent(cfg.Sandbox.MaxConcurrent),
		executor.WithBuildTimeout(cfg.Sandbox.BuildTimeout),
		executor.WithMaxStdout(cfg.Sandbox.MaxStdout),
	)

	snippets := redisrepo.NewCachedSnippetStore(postgres.NewPostgresSnippetStore(dbPool), redisClient, cfg.Judge.SnippetCacheTTL, logger)
	g := grader.NewGrader(exec, template.NewMerger(snippets, logger), logger,
		grader.WithLimitVerdicts(cfg.Judge.LimitVerdicts),
	)

	judgeSvc := usecase.NewJudgeService(
		postgres.NewPostgresProblemStore(dbPool),
		postgres.NewPostgresSubmissionStore(dbPool),
		redisrepo.NewRedisJudgingLock(redisClient),
		g,
		logger,
		usecase.WithLockTTL(cfg.Judge.LockTTL),
		usecase.WithBuildTimeout(cfg.Sandbox.BuildTimeout),
		usecase.WithMaxSourceBytes(cfg.Judge.MaxSourceBytes),
	)

	jobsChan := make(chan *domain.JobMessage, cfg.Worker.PoolSize*2)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.PoolSize, jobsChan, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	logger.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, judgeSvc, logger)
	workerPool.Start(ctx)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("AMQP consumer error", zap.Error(err))
			cancel()
		}
	}()

	// Start Prometheus metrics server
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down worker...",
		zap.String("sandbox", backend.Name()),
	)
	cancel()

	// Wait for workers to finish in-flight jobs
	workerPool.Stop()

	logger.Info("Worker stopped")
}
