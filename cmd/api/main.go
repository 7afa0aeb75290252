package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/api/handlers"
	"github.com/dataguard/agent/internal/compliance"
	"github.com/dataguard/agent/internal/metrics"
	"github.com/dataguard/agent/internal/middleware/ratelimit"
	"github.com/dataguard/agent/internal/middleware/security"
	"github.com/dataguard/agent/internal/middleware/validation"
	"github.com/dataguard/agent/internal/pipeline"
	"github.com/dataguard/agent/internal/reasoning"
	"github.com/dataguard/agent/internal/retrieval"
	"github.com/dataguard/agent/internal/storage/sqlite"
	"github.com/dataguard/agent/pkg/config"
	appLogger "github.com/dataguard/agent/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DataGuard Agent API Server")

	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path, cfg.Pipeline.LatencyThresholdSec)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer store.Close()

	err = store.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	complianceEngine := compliance.NewEngine(
		cfg.Compliance.DataSizeViolationBytes,
		cfg.Compliance.DataSizeWarningBytes,
		cfg.Compliance.RetentionDays,
	)

	retriever := retrieval.NewClient(
		cfg.Retrieval.WeatherAPIURL,
		cfg.Retrieval.WeatherAPIKey,
		cfg.Retrieval.TimeoutSec,
	)

	var reasoner reasoning.Reasoner
	if cfg.Reasoning.Provider == "openai" && cfg.Reasoning.APIKey != "" {
		appLogger.Info("Using LLM reasoner", zap.String("model", cfg.Reasoning.Model))
		reasoner = reasoning.NewLLMReasoner(
			cfg.Reasoning.APIKey,
			cfg.Reasoning.Model,
			cfg.Reasoning.Temperature,
			cfg.Reasoning.MaxTokens,
		)
	} else {
		appLogger.Info("Using heuristic reasoner")
		reasoner = reasoning.NewAgent()
	}

	engine := pipeline.NewEngine(
		store,
		retriever,
		reasoner,
		complianceEngine,
		cfg.Pipeline.DefaultRegulations,
		cfg.Pipeline.EnableLearning,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	corsOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Logging.Level == "debug",
	}))
	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength: 5000,
		Logger:         appLogger.GetLogger(),
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	app.Use(limiter.Middleware())

	analyzeHandler := handlers.NewAnalyzeHandler(engine)
	analyticsHandler := handlers.NewAnalyticsHandler(engine, store)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/analyze", analyzeHandler.HandleAnalyze)
	api.Post("/analyze/batch", analyzeHandler.HandleBatch)

	api.Get("/analytics", analyticsHandler.HandleAnalytics)
	api.Get("/analytics/recommendations", analyticsHandler.HandleRecommendations)
	api.Get("/analytics/insights", analyticsHandler.HandleInsights)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analyze", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
