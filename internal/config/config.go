package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	TokenSecret        string // HMAC secret for bearer tokens

	// Database
	DatabaseURL string

	// Redis (queue + rate limiter)
	RedisURL string

	// Object storage
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string
	UploadFolder      string // key prefix for user uploads

	// Generation provider selection: "fal", "runware", "runway", or "google"
	Provider string

	FalKey     string
	RunwareKey string
	RunwayKey  string
	GeminiKey  string

	// OpenAI (optional prompt enhancement before the transform stage)
	OpenAIKey      string
	EnhancePrompts bool

	// Media generator
	UpscaleEnabled bool

	// Budget
	DefaultBudget decimal.Decimal // ceiling applied when a user has no manual override

	// Worker
	MaxConcurrentJobs int
	StuckJobMinutes   int // PROCESSING rows older than this get re-enqueued at startup

	// Rate limiting
	RateLimitPerMinute int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		TokenSecret:        getEnv("TOKEN_SECRET", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "reelsmith-media"),
		UploadFolder:       getEnv("STORAGE_UPLOAD_FOLDER", "uploads"),
		Provider:           getEnv("GENERATION_PROVIDER", "fal"),
		FalKey:             getEnv("FAL_API_KEY", ""),
		RunwareKey:         getEnv("RUNWARE_API_KEY", ""),
		RunwayKey:          getEnv("RUNWAY_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		EnhancePrompts:     getEnvBool("ENHANCE_PROMPTS", false),
		UpscaleEnabled:     getEnvBool("UPSCALE_ENABLED", false),
		DefaultBudget:      getEnvDecimal("DEFAULT_BUDGET", decimal.NewFromInt(20)),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 5),
		StuckJobMinutes:    getEnvInt("STUCK_JOB_MINUTES", 15),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET is required")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	switch cfg.Provider {
	case "fal":
		if cfg.FalKey == "" {
			return nil, fmt.Errorf("FAL_API_KEY is required when GENERATION_PROVIDER=fal")
		}
	case "runware":
		if cfg.RunwareKey == "" {
			return nil, fmt.Errorf("RUNWARE_API_KEY is required when GENERATION_PROVIDER=runware")
		}
	case "runway":
		if cfg.RunwayKey == "" {
			return nil, fmt.Errorf("RUNWAY_API_KEY is required when GENERATION_PROVIDER=runway")
		}
	case "google":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when GENERATION_PROVIDER=google")
		}
	default:
		return nil, fmt.Errorf("unknown GENERATION_PROVIDER %q (allowed: fal, runware, runway, google)", cfg.Provider)
	}

	if cfg.EnhancePrompts && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required when ENHANCE_PROMPTS=true")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
