package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/delivery/http/middleware"
	"github.com/Harsh-BH/sentinel-judge/internal/language"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// maxRequestBodyOverhead leaves room for JSON escaping on top of the source limit.
const maxRequestBodyOverhead = 64 << 10

// RouterConfig holds the knobs NewRouter needs beyond its dependencies.
type RouterConfig struct {
	RateLimitPerMin int
	MaxSourceBytes  int
	HealthChecks    map[string]PingFunc
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(judge *usecase.JudgeService, languages *language.Table, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(cfg.HealthChecks, logger)
		v1.GET("/health", healthHandler.Health)

		langHandler := NewLanguageHandler(languages)
		v1.GET("/languages", langHandler.List)

		subHandler := NewSubmissionHandler(judge, logger)
		wsHandler := NewWebSocketHandler(judge, logger)

		v1.GET("/submissions/:id", subHandler.GetByID)
		v1.GET("/submissions/:id/stream", wsHandler.Stream)
		v1.GET("/problems/:problemId/submission", subHandler.GetForProblem)
		v1.GET("/users/:userId/submissions", subHandler.ListByUser)

		limited := v1.Group("/submissions",
			middleware.RateLimiter(cfg.RateLimitPerMin),
			middleware.BodySizeLimit(int64(cfg.MaxSourceBytes)+maxRequestBodyOverhead),
		)
		limited.POST("", subHandler.Submit)
		limited.POST("/test", subHandler.Test)
		limited.POST("/queue", subHandler.Queue)
	}

	return router
}
