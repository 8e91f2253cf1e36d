package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/zombar/guardian/internal/ai"
	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/api"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/auth"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/contextquality"
	"github.com/zombar/guardian/internal/database"
	"github.com/zombar/guardian/internal/document"
	"github.com/zombar/guardian/internal/guardian"
	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/queue"
	"github.com/zombar/guardian/internal/ratelimit"
	"github.com/zombar/guardian/internal/safety"
	"github.com/zombar/guardian/internal/sanitizer"
	"github.com/zombar/guardian/internal/terminology"
	"github.com/zombar/guardian/internal/therapeutic"
	"github.com/zombar/guardian/pkg/tracing"
)

const version = "1.0.0"

type serverConfig struct {
	Port            string
	DBDriver        string
	DBDSN           string
	RedisAddr       string
	RedisPassword   string
	JWTSecret       string
	AIProvider      string
	AIBaseURL       string
	AIAPIKey        string
	AIModels        []string
	StorageBackend  string
	StorageRoot     string
	GCSBucket       string
	GCSCredentials  string
	WeightsFile     string
	AlertWebhookURL string
	RateLimit       int
	Concurrency     int
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("guardian service initializing", "version", version)

	cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize tracing
	tp, err := tracing.InitTracer(ctx, tracing.ConfigFromEnv("guardian", version))
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	metrics.Init()

	weights, err := config.LoadWeights(cfg.WeightsFile)
	if err != nil {
		logger.Error("failed to load scoring weights", "error", err, "path", cfg.WeightsFile)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "driver", cfg.DBDriver)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	prometheus.MustRegister(collectors.NewDBStatsCollector(db.Conn(), "guardian"))

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		os.Exit(1)
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize document storage", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	if closer, ok := objects.(io.Closer); ok {
		defer closer.Close()
	}

	aiClient, err := newAIClient(cfg, logger)
	if err != nil {
		logger.Warn("AI model unavailable, chat and image extraction disabled", "error", err)
	} else {
		logger.Info("AI client initialized", "provider", cfg.AIProvider, "models", aiClient.Models())
	}

	// Core components
	vocab := analyzer.New()
	san := sanitizer.New()
	recorder := audit.NewRecorder(db, logger)
	contexts := contextquality.New(db, recorder, weights.Context, logger)
	evaluator := therapeutic.New(vocab, recorder, weights.Therapeutic, logger)
	accuracy := document.NewAccuracyAnalyzer(recorder, weights.Document, logger)
	terms := terminology.New(recorder, weights.Terminology, logger)

	var vision document.Vision
	if aiClient != nil {
		vision = aiClient
	}
	extractor := document.NewExtractor(db, objects, vision, accuracy, terms, logger)

	var (
		limiter     ratelimit.Limiter
		queueClient *queue.Client
		worker      *queue.Worker
		safetyOpts  []safety.Option
		docQueue    api.DocumentQueue
	)
	limitCfg := ratelimit.Config{Limit: cfg.RateLimit, Window: time.Minute}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, limitCfg, logger)

		queueClient = queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr, RedisPassword: cfg.RedisPassword})
		defer queueClient.Close()
		safetyOpts = append(safetyOpts, safety.WithAlerter(queueClient))
		docQueue = queueClient

		var notifier queue.Notifier
		if cfg.AlertWebhookURL != "" {
			notifier = queue.NewWebhookNotifier(cfg.AlertWebhookURL, nil)
		}
		worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			Concurrency:   cfg.Concurrency,
		}, extractor, notifier, logger)
		if err := worker.Start(); err != nil {
			logger.Error("failed to start queue worker", "error", err)
			os.Exit(1)
		}
		logger.Info("queue initialized", "redis_addr", cfg.RedisAddr, "webhook_alerts", notifier != nil)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(limitCfg)
		defer memLimiter.Stop()
		limiter = memLimiter
		logger.Info("REDIS_ADDR not set, using in-memory rate limiting and inline extraction")
	}

	validator := safety.New(vocab, san, recorder, db, weights.Safety, logger, safetyOpts...)

	deps := api.Dependencies{
		Store:       db,
		Contexts:    contexts,
		Therapeutic: evaluator,
		Safety:      validator,
		Documents:   accuracy,
		Terminology: terms,
		Verifier:    verifier,
		Limiter:     limiter,
		Logger:      logger,
	}
	if aiClient != nil {
		deps.Guardian = guardian.New(contexts, evaluator, validator, san, aiClient, db, logger)
	}
	if docQueue != nil {
		deps.Queue = docQueue
	} else {
		deps.Extractor = extractor
	}

	// Create server with extended timeouts for AI processing
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewHandler(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("guardian service starting",
			"port", cfg.Port,
			"db_driver", cfg.DBDriver,
			"storage_backend", cfg.StorageBackend,
			"ai_enabled", aiClient != nil,
			"rate_limit_per_minute", cfg.RateLimit,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Shutdown()
	}

	logger.Info("server stopped")
}

// loadConfig parses flags, falling back to environment variables
func loadConfig(fs *flag.FlagSet, args []string) (*serverConfig, error) {
	cfg := &serverConfig{}
	var models string

	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port (env: PORT)")
	fs.StringVar(&cfg.DBDriver, "db-driver", getEnv("DB_DRIVER", database.DriverSQLite), "Database driver: sqlite or postgres (env: DB_DRIVER)")
	fs.StringVar(&cfg.DBDSN, "db-dsn", getEnv("DB_DSN", "guardian.db"), "Database DSN or file path (env: DB_DSN)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for the queue and shared rate limits (env: REDIS_ADDR)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password (env: REDIS_PASSWORD)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnv("JWT_SECRET", ""), "HS256 secret for bearer tokens (env: JWT_SECRET)")
	fs.StringVar(&cfg.AIProvider, "ai-provider", getEnv("AI_PROVIDER", "ollama"), "AI provider: ollama or openai (env: AI_PROVIDER)")
	fs.StringVar(&cfg.AIBaseURL, "ai-base-url", getEnv("AI_BASE_URL", ""), "AI API base URL (env: AI_BASE_URL)")
	fs.StringVar(&cfg.AIAPIKey, "ai-api-key", getEnv("AI_API_KEY", ""), "AI API key (env: AI_API_KEY)")
	fs.StringVar(&models, "ai-models", getEnv("AI_MODELS", "llama3.1:8b"), "Comma-separated model fallback chain (env: AI_MODELS)")
	fs.StringVar(&cfg.StorageBackend, "storage-backend", getEnv("STORAGE_BACKEND", "local"), "Document storage: local or gcs (env: STORAGE_BACKEND)")
	fs.StringVar(&cfg.StorageRoot, "storage-root", getEnv("STORAGE_ROOT", "./documents"), "Local document directory (env: STORAGE_ROOT)")
	fs.StringVar(&cfg.GCSBucket, "gcs-bucket", getEnv("GCS_BUCKET", ""), "GCS bucket for documents (env: GCS_BUCKET)")
	fs.StringVar(&cfg.GCSCredentials, "gcs-credentials", getEnv("GCS_CREDENTIALS_FILE", ""), "GCS service account file (env: GCS_CREDENTIALS_FILE)")
	fs.StringVar(&cfg.WeightsFile, "weights", getEnv("WEIGHTS_FILE", ""), "YAML scoring weights file (env: WEIGHTS_FILE)")
	fs.StringVar(&cfg.AlertWebhookURL, "alert-webhook", getEnv("ALERT_WEBHOOK_URL", ""), "Webhook for critical safety alerts (env: ALERT_WEBHOOK_URL)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", getEnvInt("RATE_LIMIT_PER_MINUTE", ratelimit.DefaultLimit), "Requests per minute per function and client (env: RATE_LIMIT_PER_MINUTE)")
	fs.IntVar(&cfg.Concurrency, "worker-concurrency", getEnvInt("WORKER_CONCURRENCY", 5), "Queue worker concurrency (env: WORKER_CONCURRENCY)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AIModels = splitList(models)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit)
	}
	return cfg, nil
}

// newAIClient builds the model fallback chain for the configured provider
func newAIClient(cfg *serverConfig, logger *slog.Logger) (*ai.Client, error) {
	var provider ai.Provider
	switch cfg.AIProvider {
	case "ollama":
		p, err := ai.NewOllamaProvider(cfg.AIBaseURL, nil)
		if err != nil {
			return nil, err
		}
		provider = p
	case "openai":
		if cfg.AIAPIKey == "" {
			return nil, fmt.Errorf("AI_API_KEY is required for the openai provider")
		}
		provider = ai.NewOpenAIProvider(cfg.AIAPIKey, cfg.AIBaseURL)
	case "", "none":
		return nil, fmt.Errorf("no AI provider configured")
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
	return ai.New(provider, cfg.AIModels, logger)
}

// newObjectStore opens the document byte store for the configured backend
func newObjectStore(ctx context.Context, cfg *serverConfig) (document.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "local", "":
		return document.NewLocalStore(cfg.StorageRoot)
	case "gcs":
		var opts []option.ClientOption
		if cfg.GCSCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentials))
		}
		return document.NewGCSStore(ctx, cfg.GCSBucket, opts...)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
