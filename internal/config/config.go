// Package config loads the service's environment-variable configuration
// once at startup, following the teacher's config.Load() shape: every
// field has an explicit default, overridable by an env var, resolved
// eagerly into a typed Config (no framework, no reflection-based
// binding).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Addr             string
	LogLevel         string
	SessionStorePath string

	RedisAddr      string
	RedisKeyPrefix string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey string
	AnthropicModel  string

	MaxTokensPerBatch            int
	SingleBatchMaxTokensPerChunk int
	TranslationBatchSize         int
	EntryCacheSize               int
	CacheTranslations            bool

	StreamActivityMax                   int
	StreamActivityTTL                   time.Duration
	StreamActivityHeartbeat             time.Duration
	StreamActivityMaxConnAge            time.Duration
	StreamActivityMaxListenersPerConfig int
	StreamActivityHeartbeatLogInterval  time.Duration
}

// Load resolves Config from the environment, applying defaults for any
// unset variable.
func Load() Config {
	return Config{
		Addr:             getString("ADDR", ":8080"),
		LogLevel:         getString("LOG_LEVEL", "info"),
		SessionStorePath: getString("SESSION_STORE_PATH", "./data/sessions.json"),

		RedisAddr:      getString("REDIS_ADDR", ""),
		RedisKeyPrefix: getString("REDIS_KEY_PREFIX", "subtrans:"),

		OpenAIAPIKey:  getString("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getString("OPENAI_BASE_URL", ""),
		OpenAIModel:   getString("OPENAI_MODEL", "gpt-4o-mini"),

		AnthropicAPIKey: getString("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),

		MaxTokensPerBatch:            getInt("MAX_TOKENS_PER_BATCH", 8000),
		SingleBatchMaxTokensPerChunk: getInt("SINGLE_BATCH_MAX_TOKENS_PER_CHUNK", 8000),
		TranslationBatchSize:         getInt("TRANSLATION_BATCH_SIZE", 0),
		EntryCacheSize:               getInt("ENTRY_CACHE_SIZE", 5000),
		CacheTranslations:            getBool("CACHE_TRANSLATIONS", true),

		StreamActivityMax:                   getInt("STREAM_ACTIVITY_MAX", 1000),
		StreamActivityTTL:                   getMillis("STREAM_ACTIVITY_TTL_MS", 0),
		StreamActivityHeartbeat:             getMillis("STREAM_ACTIVITY_HEARTBEAT_MS", 40_000),
		StreamActivityMaxConnAge:            getMillis("STREAM_ACTIVITY_MAX_CONN_AGE_MS", 3_600_000),
		StreamActivityMaxListenersPerConfig: getInt("STREAM_ACTIVITY_MAX_LISTENERS_PER_CONFIG", 4),
		StreamActivityHeartbeatLogInterval:  getMillis("STREAM_ACTIVITY_HEARTBEAT_LOG_INTERVAL_MS", 300_000),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
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

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getMillis(key string, fallbackMs int) time.Duration {
	return time.Duration(getInt(key, fallbackMs)) * time.Millisecond
}
