package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"shameless/internal/common/config"
	"shameless/internal/common/middleware"
	"shameless/internal/gesture"
	"shameless/internal/scratch"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// Scratch Service
// ============================================================

func main() {
	cfg := config.Load()
	if os.Getenv("PORT") == "" {
		cfg.Port = "3001"
	}

	var opts []scratch.Option
	if cfg.StrokeWidth > 0 {
		opts = append(opts, scratch.WithStrokeWidth(cfg.StrokeWidth))
	}
	if cfg.RevealThreshold > 0 {
		opts = append(opts, scratch.WithThreshold(cfg.RevealThreshold))
	}
	gestures := gesture.NewHandler(opts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		AppName:      "Scratch Service",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger("scratch"))

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", gestures.Health)
	app.Get("/health/ready", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready"})
	})

	// ============================================================
	// Gesture Routes
	// ============================================================

	app.Get("/ws", gestures.Upgrade)

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Scratch Service on %s (env: %s)", addr, cfg.Environment)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
