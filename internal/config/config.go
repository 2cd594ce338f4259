package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BotConfig holds configuration for the bot process.
type BotConfig struct {
	TelegramToken      string
	ModelProvider      string
	LlamaBaseURL       string
	LlamaAPIKey        string
	Model              string
	ContextWindow      int
	MaxTokens          int
	Temperature        float64
	TopK               int
	TopP               float64
	MinP               float64
	RepeatPenalty      float64
	HistoryLimit       int
	SystemPrompt       string
	StreamMode         bool
	StreamEditInterval time.Duration
	GenerationTimeout  time.Duration
	OnlyDM             bool
	CommandPrefix      string
	FullLog            bool
	DBPath             string
	DummyScript        string
}

// LoadBotConfig reads bot configuration from environment variables.
// Missing required settings are reported as errors so the process
// refuses to start half-configured.
func LoadBotConfig() (BotConfig, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return BotConfig{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment")
	}

	provider := envOrDefault("LLAMAGRAM_MODEL_PROVIDER", "llama")
	baseURL := os.Getenv("LLAMA_BASE_URL")
	if provider == "llama" && baseURL == "" {
		return BotConfig{}, fmt.Errorf("LLAMA_BASE_URL is required in environment when LLAMAGRAM_MODEL_PROVIDER=llama")
	}

	historyLimit := envIntOrDefault("HISTORY_LIMIT", 3)
	if historyLimit < 1 {
		return BotConfig{}, fmt.Errorf("HISTORY_LIMIT must be >= 1")
	}

	return BotConfig{
		TelegramToken:      token,
		ModelProvider:      provider,
		LlamaBaseURL:       baseURL,
		LlamaAPIKey:        envOrDefault("LLAMA_API_KEY", "none"),
		Model:              envOrDefault("LLAMA_MODEL", "local"),
		ContextWindow:      envIntOrDefault("MODEL_N_CTX", 1024),
		MaxTokens:          envIntOrDefault("MAX_TOKENS", 256),
		Temperature:        envFloatOrDefault("TEMPERATURE", 0.7),
		TopK:               envIntOrDefault("TOP_K", 40),
		TopP:               envFloatOrDefault("TOP_P", 0.95),
		MinP:               envFloatOrDefault("MIN_P", 0.05),
		RepeatPenalty:      envFloatOrDefault("REPEAT_PENALTY", 1.1),
		HistoryLimit:       historyLimit,
		SystemPrompt:       envOrDefault("SYSTEM_PROMPT", "You are a helpful assistant"),
		StreamMode:         envBoolOrDefault("STREAM_MODE", false),
		StreamEditInterval: time.Duration(envIntOrDefault("STREAM_EDIT_INTERVAL_MS", 1000)) * time.Millisecond,
		GenerationTimeout:  time.Duration(envIntOrDefault("GENERATION_TIMEOUT_SECONDS", 300)) * time.Second,
		OnlyDM:             envBoolOrDefault("ONLY_DM", true),
		CommandPrefix:      envOrDefault("COMMAND_PREFIX", "/"),
		FullLog:            envBoolOrDefault("FULL_LOG", false),
		DBPath:             envOrDefault("LLAMAGRAM_DB_PATH", ""),
		DummyScript:        envOrDefault("LLAMAGRAM_DUMMY_SCRIPT", "ok"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
