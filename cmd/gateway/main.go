package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"shameless/internal/common/config"
	"shameless/internal/common/middleware"
	"shameless/internal/gateway/handlers"
	"shameless/internal/gateway/proxy"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// API Gateway
// ============================================================

func main() {
	cfg := config.Load()

	feedURL := getEnv("FEED_URL", "http://localhost:3002")
	scratchURL := getEnv("SCRATCH_URL", "http://localhost:3001")

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: 0,
		AppName:      "API Gateway",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.CORS())
	app.Use(middleware.Logger("gateway"))

	// ============================================================
	// Health Check Routes
	// ============================================================

	readiness := handlers.NewReadiness(map[string]string{
		"feed":    feedURL,
		"scratch": scratchURL,
	})
	app.Get("/health/live", handlers.LivenessProbe)
	app.Get("/health/ready", readiness.Probe)
	app.Get("/health/startup", handlers.StartupProbe)

	// ============================================================
	// Docs
	// ============================================================

	app.Get("/docs", handlers.SwaggerUI)
	app.Get("/docs/openapi.yaml", handlers.SwaggerSpec)

	// ============================================================
	// API Routes
	// ============================================================

	api := app.Group("/api/v1")

	api.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":     "Shameless API v1",
			"status":      "ok",
			"gesture_url": scratchURL + "/ws",
		})
	})

	// Feed Service
	api.All("/*", proxy.NewUpstream(feedURL).Handler())

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting API Gateway on %s (env: %s)", addr, cfg.Environment)
	log.Printf("Proxying /api/v1 to %s", feedURL)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
