package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saeid-a/ChatAppBack/internal/config"
	"github.com/saeid-a/ChatAppBack/internal/database"
	"github.com/saeid-a/ChatAppBack/internal/logging"
	"github.com/saeid-a/ChatAppBack/internal/routes"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logging.Configure(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if !cfg.UseMemoryStore() {
		if err := database.ConnectDB(ctx, cfg.DBUrl); err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.CloseDB()
	}

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	// Middleware
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	if cfg.RequestLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"store":  cfg.StoreDriver,
		})
	})
	if err := routes.RegisterRoutes(ctx, app, cfg, database.DB); err != nil {
		logrus.Fatalf("Failed to register routes: %v", err)
	}

	go func() {
		<-ctx.Done()
		logrus.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("server shutdown")
		}
	}()

	// 4. Start Server
	logrus.WithFields(logrus.Fields{
		"port":  cfg.Port,
		"env":   cfg.AppEnv,
		"store": cfg.StoreDriver,
	}).Info("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}
}
