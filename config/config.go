// Package config reads the agent's configuration from the environment, with
// optional .env loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Provider identifiers accepted by SCOUT_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	defaultOpenAIModel = "gpt-4.1-mini"
	defaultOllamaModel = "qwen3"
	defaultListenAddr  = ":8080"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Provider selects the model backend: "openai" or "ollama".
	Provider string

	// Model is the model identifier sent to the backend.
	Model string

	// APIKey authenticates against the OpenAI backend. Unused for Ollama.
	APIKey string

	// BaseURL overrides the backend's endpoint.
	BaseURL string

	// ListenAddr is the HTTP server bind address.
	ListenAddr string

	// APIToken, when set, enables bearer authentication on the server.
	APIToken string

	// LogLevel is the slog level for the whole process.
	LogLevel slog.Level

	// TurnBudget overrides the orchestrator's round limit; 0 keeps the
	// default.
	TurnBudget int
}

// FromEnv builds the configuration from environment variables, loading a
// .env file first when one exists.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Provider:   strings.ToLower(getenv("SCOUT_PROVIDER", ProviderOllama)),
		Model:      os.Getenv("SCOUT_MODEL"),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		BaseURL:    os.Getenv("SCOUT_BASE_URL"),
		ListenAddr: getenv("SCOUT_ADDR", defaultListenAddr),
		APIToken:   os.Getenv("SCOUT_API_TOKEN"),
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires OPENAI_API_KEY", cfg.Provider)
		}
	case ProviderOllama:
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
	default:
		return nil, fmt.Errorf("unknown provider %q: want %q or %q", cfg.Provider, ProviderOpenAI, ProviderOllama)
	}

	level, err := parseLogLevel(getenv("SCOUT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if raw := os.Getenv("SCOUT_TURN_BUDGET"); raw != "" {
		budget, err := strconv.Atoi(raw)
		if err != nil || budget < 1 {
			return nil, fmt.Errorf("invalid SCOUT_TURN_BUDGET %q", raw)
		}
		cfg.TurnBudget = budget
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid SCOUT_LOG_LEVEL %q", raw)
	}
}
