package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("RATE_LIMIT_REQUESTS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "auto" {
		t.Fatalf("expected auto provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.RateLimitRequests != 60 {
		t.Fatalf("expected default request ceiling, got %d", cfg.RateLimitRequests)
	}
	if cfg.StageCacheTTL != time.Hour {
		t.Fatalf("expected 1h stage cache TTL, got %s", cfg.StageCacheTTL)
	}
	if cfg.ConversationCacheTTL != 30*time.Minute {
		t.Fatalf("expected 30m conversation cache TTL, got %s", cfg.ConversationCacheTTL)
	}
	if cfg.DBMaxRetries != 3 {
		t.Fatalf("expected default db retries, got %d", cfg.DBMaxRetries)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LLM_PROVIDER", "Bedrock")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")
	t.Setenv("RATE_LIMIT_TOKENS", "50000")
	t.Setenv("STAGE_CACHE_TTL", "15m")
	t.Setenv("AI_STOP_DEFAULT_WINDOW", "2h")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected provider lowered, got %s", cfg.LLMProvider)
	}
	if cfg.RateLimitTokens != 50000 {
		t.Fatalf("expected token ceiling override, got %d", cfg.RateLimitTokens)
	}
	if cfg.StageCacheTTL != 15*time.Minute {
		t.Fatalf("expected stage TTL override, got %s", cfg.StageCacheTTL)
	}
	if cfg.AIStopDefaultWindow != 2*time.Hour {
		t.Fatalf("expected stop window override, got %s", cfg.AIStopDefaultWindow)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("DB_RETRY_DELAY", "soon")
	cfg := Load()
	if cfg.RateLimitRequests != 60 {
		t.Fatalf("expected fallback request ceiling, got %d", cfg.RateLimitRequests)
	}
	if cfg.RedisTLS {
		t.Fatal("expected redis TLS to fall back to false")
	}
	if cfg.DBRetryDelay != 500*time.Millisecond {
		t.Fatalf("expected fallback retry delay, got %s", cfg.DBRetryDelay)
	}
}
