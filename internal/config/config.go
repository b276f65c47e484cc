package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort        string
	LogLevel       slog.Level
	LogFormat      string
	RequestTimeout time.Duration

	DBDriver string
	DBDSN    string

	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioUseSSL       bool
	BlobDraftsBucket  string
	BlobNotesBucket   string
	RedisURL          string
	MeiliURL          string
	MeiliAPIKey       string
	QdrantURL         string
	QdrantCollection  string
	QdrantVectorSize  int
	SessionTTL        time.Duration
	CompensateTimeout time.Duration

	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingTimeout   time.Duration
	MaxEmbedTokens     int
	TokenEncoding      string

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver: getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:    getEnv("DB_DSN", "./data/drafthub.db"),

		MinioEndpoint:    getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		BlobDraftsBucket: getEnv("BLOB_DRAFTS_BUCKET", "drafts"),
		BlobNotesBucket:  getEnv("BLOB_NOTES_BUCKET", "notes"),
		RedisURL:         getEnv("REDIS_URL", ""),
		MeiliURL:         getEnv("MEILI_URL", ""),
		MeiliAPIKey:      getEnv("MEILI_API_KEY", ""),
		QdrantURL:        getEnv("QDRANT_URL", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "notes"),

		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		TokenEncoding:      getEnv("TOKEN_ENCODING", "cl100k_base"),

		LLMBaseURL:   getEnv("LLM_BASE_URL", ""),
		LLMModelName: getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		collect(fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}
	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "pgx" {
		collect(fmt.Errorf("DB_DRIVER must be sqlite3 or pgx, got %q", cfg.DBDriver))
	}

	cfg.MinioUseSSL, err = getBool("MINIO_USE_SSL", false)
	collect(err)
	cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.EmbeddingTimeout, err = getDuration("EMBEDDING_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.CompensateTimeout, err = getDuration("COMPENSATION_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*24*time.Hour)
	collect(err)
	cfg.MaxEmbedTokens, err = getPositiveInt("MAX_EMBED_TOKENS", 8000)
	collect(err)

	// Validate required fields
	for key, value := range map[string]string{
		"MINIO_ENDPOINT":   cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY": cfg.MinioAccessKey,
		"MINIO_SECRET_KEY": cfg.MinioSecretKey,
		"REDIS_URL":        cfg.RedisURL,
	} {
		if value == "" {
			collect(fmt.Errorf("%s is required", key))
		}
	}
	if cfg.MeiliURL == "" && cfg.QdrantURL == "" {
		collect(errors.New("at least one of MEILI_URL or QDRANT_URL is required"))
	}

	// The Qdrant collection is created with a fixed dimension, which must
	// match the embeddings model output.
	if cfg.QdrantURL != "" {
		raw := getEnv("QDRANT_VECTOR_SIZE", "")
		switch size, err := strconv.Atoi(raw); {
		case raw == "":
			collect(errors.New("QDRANT_VECTOR_SIZE is required when QDRANT_URL is set"))
		case err != nil:
			collect(fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err))
		case size <= 0:
			collect(errors.New("QDRANT_VECTOR_SIZE must be greater than 0"))
		default:
			cfg.QdrantVectorSize = size
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// Create the data directory for a file-backed SQLite database.
	if cfg.DBDriver == "sqlite3" && !strings.Contains(cfg.DBDSN, ":memory:") {
		dataDir := filepath.Dir(strings.SplitN(cfg.DBDSN, "?", 2)[0])
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return d, nil
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}
