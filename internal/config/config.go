package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL  string
	DBMaxRetries int
	DBRetryDelay time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM provider selection: "bedrock", "gemini", or "auto" (bedrock with
	// gemini fallback when both are configured).
	LLMProvider    string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
	LLMMaxTokens   int

	// Per-business sliding-window ceilings, reset every minute.
	RateLimitRequests int
	RateLimitTokens   int

	StageCacheTTL        time.Duration
	ConversationCacheTTL time.Duration
	TemplateCacheTTL     time.Duration
	AIStopDefaultWindow  time.Duration
	HistoryLimit         int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxRetries: getEnvAsInt("DB_MAX_RETRIES", 3),
		DBRetryDelay: getEnvAsDuration("DB_RETRY_DELAY", 500*time.Millisecond),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "auto"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", ""),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 1024),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitTokens:   getEnvAsInt("RATE_LIMIT_TOKENS", 100000),

		StageCacheTTL:        getEnvAsDuration("STAGE_CACHE_TTL", time.Hour),
		ConversationCacheTTL: getEnvAsDuration("CONVERSATION_CACHE_TTL", 30*time.Minute),
		TemplateCacheTTL:     getEnvAsDuration("TEMPLATE_CACHE_TTL", time.Hour),
		AIStopDefaultWindow:  getEnvAsDuration("AI_STOP_DEFAULT_WINDOW", time.Hour),
		HistoryLimit:         getEnvAsInt("HISTORY_LIMIT", 10),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
