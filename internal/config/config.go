// Package config provides centralized configuration for the coursegen server.
// Values come from environment variables, optionally seeded from .env files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// LogMode selects the logger flavour: "dev" or "prod".
	LogMode string

	// LLMProvider selects which LLM backend to use: "openai", "claude", "gemini", "ollama".
	LLMProvider string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicKey   string
	AnthropicModel string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string

	// YouTubeKey enables video enrichment when set.
	YouTubeKey string

	// JWTSecret verifies bearer tokens at the authorization boundary.
	JWTSecret string

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string

	// HTTPTimeout is the timeout for outgoing provider requests.
	HTTPTimeout time.Duration

	// GenerationConcurrency caps concurrent lesson generations per course.
	GenerationConcurrency int

	// BackfillInterval is the polling interval of the pending-lesson
	// backfill worker. Zero disables it.
	BackfillInterval time.Duration

	// CreateRateLimit is the number of course creations allowed per client IP per minute.
	CreateRateLimit int
}

// Load reads configuration from environment variables, applying defaults.
// .env.local and .env are loaded first; variables already set in the real
// environment take precedence.
func Load() Config {
	loadEnvFile(".env.local")
	loadEnvFile(".env")

	return Config{
		Port:                  envOr("PORT", "8080"),
		DBPath:                envOr("DB_PATH", "coursegen.db"),
		LogMode:               envOr("LOG_MODE", "dev"),
		LLMProvider:           envOr("LLM_PROVIDER", "gemini"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:           envOr("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:          os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:        envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiKey:             os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaURL:             envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:           envOr("OLLAMA_MODEL", "llama3"),
		YouTubeKey:            os.Getenv("YOUTUBE_API_KEY"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		CORSOrigins:           envList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		HTTPTimeout:           envDuration("HTTP_TIMEOUT", 60*time.Second),
		GenerationConcurrency: envInt("GENERATION_CONCURRENCY", 4),
		BackfillInterval:      envDuration("BACKFILL_INTERVAL", 0),
		CreateRateLimit:       envInt("CREATE_RATE_LIMIT", 10),
	}
}

// UseStubs returns true when no LLM API key is configured for the selected provider.
func (c Config) UseStubs() bool {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIKey == ""
	case "claude":
		return c.AnthropicKey == ""
	case "ollama":
		return false // local, no key needed
	default:
		return c.GeminiKey == ""
	}
}

func loadEnvFile(path string) {
	// Missing files are fine; godotenv never overrides variables already set.
	_ = godotenv.Load(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
