package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/SaibSameer/icmp-sub000/internal/api/router"
	appconfig "github.com/SaibSameer/icmp-sub000/internal/config"
	"github.com/SaibSameer/icmp-sub000/internal/db"
	"github.com/SaibSameer/icmp-sub000/internal/extraction"
	"github.com/SaibSameer/icmp-sub000/internal/http/handlers"
	"github.com/SaibSameer/icmp-sub000/internal/llm"
	"github.com/SaibSameer/icmp-sub000/internal/observability/metrics"
	"github.com/SaibSameer/icmp-sub000/internal/pipeline"
	"github.com/SaibSameer/icmp-sub000/internal/state"
	"github.com/SaibSameer/icmp-sub000/internal/store"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

func main() {
	// Load .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting icmp API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()

	manager := db.NewManager(db.NewPgxPool(pool), logger,
		db.WithMaxRetries(cfg.DBMaxRetries),
		db.WithRetryDelay(cfg.DBRetryDelay),
	)

	rdb := connectRedis(cfg)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	// Durable repositories
	conversations := store.NewConversationRepository(manager)
	stages := store.NewStageRepository(manager)
	messages := store.NewMessageRepository(manager)
	templates := store.NewTemplateRepository(manager)
	llmCalls := store.NewLLMCallRepository(manager)
	processLogs := store.NewProcessLogRepository(manager)
	aiControl := store.NewAIControlRepository(manager)

	states := state.NewStore(rdb, conversations, templates, aiControl, state.Options{
		StageTTL:        cfg.StageCacheTTL,
		ConversationTTL: cfg.ConversationCacheTTL,
		TemplateTTL:     cfg.TemplateCacheTTL,
	}, logger)

	metricsHandler, pipelineMetrics := setupPipelineMetrics()

	client, model, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	limiter := llm.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitTokens)
	orchestrator := llm.NewOrchestrator(client, limiter, messages, llmCalls, conversations,
		model, int32(cfg.LLMMaxTokens), logger,
		llm.WithHistoryLimit(cfg.HistoryLimit),
		llm.WithMetrics(pipelineMetrics),
		llm.WithStageSource(stages),
	)

	processor := pipeline.NewProcessor(conversations, stages, messages, states,
		orchestrator, extraction.NewEngine(logger), processLogs, logger,
		pipeline.WithStopWindow(cfg.AIStopDefaultWindow),
		pipeline.WithMetrics(pipelineMetrics),
	)

	r := router.New(&router.Config{
		Logger:           logger,
		MessageHandler:   handlers.NewMessageHandler(processor, logger),
		AIControlHandler: handlers.NewAIControlHandler(processor, logger),
		MetricsHandler:   metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool opens the pgx pool, or returns nil when no URL is
// configured.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres unreachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func connectRedis(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// setupPipelineMetrics builds an isolated registry so tests and multiple
// instances never collide on the default registerer.
func setupPipelineMetrics() (http.Handler, *metrics.PipelineMetrics) {
	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, pipelineMetrics
}

// loadAWSConfig builds the SDK config for Bedrock. Static credentials and a
// LocalStack-style endpoint override are honored when configured.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				if service == bedrockruntime.ServiceID {
					return aws.Endpoint{URL: endpoint, PartitionID: "aws", SigningRegion: cfg.AWSRegion}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			},
		)
	}

	return awsCfg, nil
}

// buildLLMClient selects the model backend from configuration. Provider
// "auto" prefers Bedrock and falls back to Gemini when both are configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, string, error) {
	var bedrockClient llm.Client
	if cfg.BedrockModelID != "" && cfg.LLMProvider != "gemini" {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("load AWS config: %w", err)
		}
		bedrockClient = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var geminiClient llm.Client
	if cfg.GeminiAPIKey != "" && cfg.LLMProvider != "bedrock" {
		gc, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", fmt.Errorf("create Gemini client: %w", err)
		}
		geminiClient = gc
	}

	switch cfg.LLMProvider {
	case "bedrock":
		if bedrockClient == nil {
			return nil, "", fmt.Errorf("LLM_PROVIDER=bedrock requires BEDROCK_MODEL_ID")
		}
		return bedrockClient, cfg.BedrockModelID, nil
	case "gemini":
		if geminiClient == nil {
			return nil, "", fmt.Errorf("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		return geminiClient, cfg.GeminiModelID, nil
	case "auto":
		switch {
		case bedrockClient != nil && geminiClient != nil:
			return llm.NewFallbackClient(bedrockClient, geminiClient, logger), cfg.BedrockModelID, nil
		case bedrockClient != nil:
			return bedrockClient, cfg.BedrockModelID, nil
		case geminiClient != nil:
			return geminiClient, cfg.GeminiModelID, nil
		default:
			return nil, "", fmt.Errorf("no LLM backend configured: set BEDROCK_MODEL_ID or GEMINI_API_KEY")
		}
	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
