package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"shameless/internal/common/config"
	"shameless/internal/common/middleware"
	"shameless/internal/feed/handlers"
	"shameless/internal/feed/repository"
	"shameless/internal/feed/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gogpu/gg"
)

// ============================================================
// Feed Service
// ============================================================

func main() {
	cfg := config.Load()
	if os.Getenv("PORT") == "" {
		cfg.Port = "3002"
	}
	if cfg.IsDevelopment() {
		gg.SetLogger(slog.Default())
	}

	dbPath := getenv("FEED_DB_PATH", "data/db/feed.db")
	db, err := repository.OpenSQLite(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	repo := repository.New(db)
	if err := repo.Init(context.Background()); err != nil {
		log.Fatalf("init db: %v", err)
	}

	images := service.NewImageStore(getenv("IMAGE_CACHE_DIR", "data/images"))
	if err := images.EnsureDir(); err != nil {
		log.Fatalf("image cache: %v", err)
	}

	sessions := service.NewSessionManager()
	hub := service.NewChangeHub()

	authHandler := handlers.NewAuthHandler(repo, sessions)
	feedHandler := handlers.NewFeedHandler(repo, sessions, hub, images)
	feedHandler.ViewportWidth = cfg.ViewportWidth
	feedHandler.Overlay = cfg.Overlay

	app := fiber.New(fiber.Config{
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Second,
		// The liked stream is long-lived.
		WriteTimeout: 0,
		AppName:      "Feed Service",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger("feed"))

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c fiber.Ctx) error {
		if err := db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	// ============================================================
	// Feed Routes
	// ============================================================

	handlers.Mount(app, authHandler, feedHandler)

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Feed Service on %s (env: %s, db: %s)", addr, cfg.Environment, dbPath)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getenv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
