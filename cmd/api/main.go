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
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/api/handlers"
	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/internal/middleware/ratelimit"
	"github.com/henny-hen/DASOS-backend/internal/middleware/security"
	"github.com/henny-hen/DASOS-backend/internal/middleware/validation"
	"github.com/henny-hen/DASOS-backend/pkg/config"
	appLogger "github.com/henny-hen/DASOS-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := bootstrap.InitLogger(cfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DASOS API Server")
	metrics.Init()

	components, err := bootstrap.Open(cfg, bootstrap.Options{})
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		ExemptPrefixes:    []string{"/metrics", "/api/v1/health", "/api/v1/ready"},
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(metrics.HTTPMiddleware())
	app.Use(limiter.Middleware())

	app.Get("/metrics", metrics.MetricsHandler())

	guard := handlers.NewRunGuard(components.Runner)

	api := app.Group("/api/v1", validation.Middleware(validation.Config{
		MaxRecords: 5000,
		Logger:     appLogger.GetLogger(),
	}))
	handlers.Register(api, handlers.Handlers{
		Subjects:  handlers.NewSubjectsHandler(components.Store),
		Results:   handlers.NewResultsHandler(components.Store),
		Records:   handlers.NewRecordsHandler(components.Processor),
		Analysis:  handlers.NewAnalysisHandler(guard),
		WebSocket: handlers.NewWebSocketHandler(guard),
	})

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
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
