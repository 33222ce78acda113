package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/config"
	"github.com/Harsh-BH/sentinel-judge/internal/delivery/amqp"
	handler "github.com/Harsh-BH/sentinel-judge/internal/delivery/http"
	"github.com/Harsh-BH/sentinel-judge/internal/executor"
	"github.com/Harsh-BH/sentinel-judge/internal/grader"
	"github.com/Harsh-BH/sentinel-judge/internal/language"
	"github.com/Harsh-BH/sentinel-judge/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/sentinel-judge/internal/repository/redis"
	"github.com/Harsh-BH/sentinel-judge/internal/template"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting Sentinel judge API server")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(cfg.Server.GinMode)

	// Connect to PostgreSQL
	ctx := context.Background()
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
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	// Queued grading is optional; synchronous endpoints keep working without a broker.
	healthChecks := map[string]handler.PingFunc{
		"postgres": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	opts := []usecase.Option{
		usecase.WithLockTTL(cfg.Judge.LockTTL),
		usecase.WithBuildTimeout(cfg.Sandbox.BuildTimeout),
		usecase.WithMaxSourceBytes(cfg.Judge.MaxSourceBytes),
	}
	pub, err := amqp.NewPublisher(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, queued grading disabled", zap.Error(err))
	} else {
		defer pub.Close()
		opts = append(opts, usecase.WithPublisher(pub))
		healthChecks["rabbitmq"] = pub.Ping
		logger.Info("Connected to RabbitMQ")
	}

	backend, err := executor.NewBackend(cfg.Sandbox.Backend, cfg.Sandbox.NsjailPath, cfg.Sandbox.NsjailConfig)
	if err != nil {
		logger.Fatal("Failed to select sandbox backend", zap.Error(err))
	}

	languages := language.Default()
	exec := executor.NewExecutor(backend, languages, logger,
		executor.WithWorkRoot(cfg.Sandbox.WorkRoot),
		executor.WithMaxConcurrent(cfg.Sandbox.MaxConcurrent),
		executor.WithBuildTimeout(cfg.Sandbox.BuildTimeout),
		executor.WithMaxStdout(cfg.Sandbox.MaxStdout),
	)

	snippets := redisrepo.NewCachedSnippetStore(postgres.NewPostgresSnippetStore(dbPool), rdb, cfg.Judge.SnippetCacheTTL, logger)
	g := grader.NewGrader(exec, template.NewMerger(snippets, logger), logger,
		grader.WithLimitVerdicts(cfg.Judge.LimitVerdicts),
	)

	judgeSvc := usecase.NewJudgeService(
		postgres.NewPostgresProblemStore(dbPool),
		postgres.NewPostgresSubmissionStore(dbPool),
		redisrepo.NewRedisJudgingLock(rdb),
		g,
		logger,
		opts...,
	)

	router := handler.NewRouter(judgeSvc, languages, logger, handler.RouterConfig{
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxSourceBytes:  cfg.Judge.MaxSourceBytes,
		HealthChecks:    healthChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("API server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("sandbox", backend.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
