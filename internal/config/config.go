package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM providers understood by llm.NewModel.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Entity store backends understood by store.Open.
const (
	StoreSurreal = "surrealdb"
	StoreSQLite  = "sqlite"
	StoreMemory  = "memory"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort string

	// Entity store
	StoreBackend string
	SQLitePath   string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Cache and invalidation
	CacheSize int
	NATSURL   string

	// LLM
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Retry policy for inference calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Text-to-speech; an empty URL selects the offline silent synthesizer
	TTSURL          string
	TTSAPIKey       string
	TTSDefaultVoice string

	// Playback
	AutoplayDelay time.Duration
	SkipInterval  time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Catalog of default selections (optional YAML file)
	CatalogPath string
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerPort: getEnv("PORTAL_SERVER_PORT", "8585"),

		StoreBackend: getEnv("PORTAL_STORE", StoreSurreal),
		SQLitePath:   getEnv("PORTAL_SQLITE_PATH", "./data/portal.db"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "portal"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "records"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		CacheSize: getEnvInt("PORTAL_CACHE_SIZE", 256),
		NATSURL:   getEnv("PORTAL_NATS_URL", ""),

		LLMProvider:     getEnv("PORTAL_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("PORTAL_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		RetryMaxAttempts: getEnvInt("PORTAL_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("PORTAL_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("PORTAL_RETRY_MAX_DELAY", 8*time.Second),

		TTSURL:          getEnv("PORTAL_TTS_URL", ""),
		TTSAPIKey:       getEnv("PORTAL_TTS_API_KEY", ""),
		TTSDefaultVoice: getEnv("PORTAL_TTS_VOICE", "narrator"),

		AutoplayDelay: getEnvDuration("PORTAL_AUTOPLAY_DELAY", 500*time.Millisecond),
		SkipInterval:  getEnvDuration("PORTAL_SKIP_INTERVAL", 10*time.Second),

		LogFile:  getEnv("PORTAL_LOG_FILE", "/tmp/portal.log"),
		LogLevel: parseLogLevel(getEnv("PORTAL_LOG_LEVEL", "INFO")),

		CatalogPath: getEnv("PORTAL_CATALOG", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
