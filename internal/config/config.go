package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config keeps runtime settings for the service.
type Config struct {
	DatabaseURL    string
	GeminiAPIKey   string
	GeminiModel    string
	TelegramToken  string
	ReportInterval time.Duration
	SweepTime      string
}

// Load reads configuration from environment variables with sane defaults.
// GEMINI_API_KEY and TELEGRAM_TOKEN are optional: without a key the planner
// degrades to deterministic fallback generation, and without a token no
// daily reports are pushed.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		ReportInterval: parseInterval(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		SweepTime:      strings.TrimSpace(os.Getenv("SWEEP_TIME")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "streeeak.db"
	}

	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-1.5-flash"
	}

	if cfg.SweepTime == "" {
		cfg.SweepTime = "00:05"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if err := validateSweepTime(cfg.SweepTime); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func validateSweepTime(raw string) error {
	if _, err := time.Parse("15:04", raw); err != nil {
		return fmt.Errorf("SWEEP_TIME %q: expected HH:MM", raw)
	}
	return nil
}
