package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the coach router service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	BrainMode         string
	BrainHTTPURL      string
	BrainModel        string
	GenerationTimeout time.Duration

	ContextWindowSize int
	MaxMessageBytes   int
	PromptBudgetBytes int

	DatabaseURL          string
	EscalationWebhookURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "coachd"),
		AllowAnyOrigin:       false,
		BrainMode:            envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL:         envTrimmed("BRAIN_HTTP_URL"),
		BrainModel:           envOrDefault("BRAIN_MODEL", "gemma"),
		DatabaseURL:          envTrimmed("DATABASE_URL"),
		EscalationWebhookURL: envTrimmed("ESCALATION_WEBHOOK_URL"),
		ShutdownTimeout:      15 * time.Second,
		GenerationTimeout:    30 * time.Second,
		ContextWindowSize:    5,
		MaxMessageBytes:      4096,
		PromptBudgetBytes:    16384,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("BRAIN_GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindowSize, err = intFromEnv("APP_CONTEXT_WINDOW_SIZE", cfg.ContextWindowSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageBytes, err = intFromEnv("APP_MAX_MESSAGE_BYTES", cfg.MaxMessageBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptBudgetBytes, err = intFromEnv("APP_PROMPT_BUDGET_BYTES", cfg.PromptBudgetBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.GenerationTimeout < time.Second {
		return Config{}, fmt.Errorf("BRAIN_GENERATION_TIMEOUT must be at least 1s")
	}
	if cfg.ContextWindowSize <= 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_WINDOW_SIZE must be positive")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_MESSAGE_BYTES must be positive")
	}
	if cfg.PromptBudgetBytes <= cfg.MaxMessageBytes {
		return Config{}, fmt.Errorf("APP_PROMPT_BUDGET_BYTES must exceed APP_MAX_MESSAGE_BYTES")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
