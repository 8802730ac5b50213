package config

import (
	"os"
	"strconv"
)

// ============================================================
// Configuration
// ============================================================

type Config struct {
	Port         string
	Environment  string
	ReadTimeout  int
	WriteTimeout int

	// ViewportWidth is the client viewport assumed when a request omits it.
	ViewportWidth float64
	// Overlay is the scratch-off colour as #RRGGBB.
	Overlay string

	// StrokeWidth and RevealThreshold override the gesture defaults when set.
	StrokeWidth     float64
	RevealThreshold float64
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "3000"),
		Environment:   getEnv("ENV", "development"),
		ReadTimeout:   getEnvAsInt("READ_TIMEOUT", 10),
		WriteTimeout:  getEnvAsInt("WRITE_TIMEOUT", 10),
		ViewportWidth: getEnvAsFloat("VIEWPORT_WIDTH", 375),
		Overlay:       getEnv("OVERLAY_COLOR", "#FF6B6B"),

		StrokeWidth:     getEnvAsFloat("STROKE_WIDTH", 0),
		RevealThreshold: getEnvAsFloat("REVEAL_THRESHOLD", 0),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultVal
}
