package common

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	Vector   VectorConfig
	Router   RouterConfig
	Index    IndexConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider    string // openai | ollama
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables
	RateBurst   int
}

// VectorConfig selects and configures the retrieval backend.
type VectorConfig struct {
	Backend    string // memory | milvus | elastic
	MilvusAddr string
	Collection string
	ESAddrs    []string
	ESIndex    string
	OllamaURL  string
	EmbedModel string
	TopK       int
}

// RouterConfig holds per-collaborator request timeouts.
type RouterConfig struct {
	ClassifyTimeout time.Duration
	ExtractTimeout  time.Duration
	StoreTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration
}

// IndexConfig configures the background vector indexing queue.
type IndexConfig struct {
	Workers         int
	QueueSize       int
	JobTimeout      time.Duration
	ReindexSchedule string
	ReindexBatch    int
}

type LogConfig struct {
	Level  string
	Format string // text | json
}

// LoadConfig loads configuration from environment variables. A .env file (or the file
// named by ENV_FILE) is read first; variables already set in the environment win.
func LoadConfig() *Config {
	loadDotEnv()
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "./bills.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:       getEnv("LLM_MODEL", "llama-3.1-8b-instant"),
			APIKey:      getEnv("LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			RateLimit:   getEnvAsFloat64("LLM_RATE_LIMIT", 2),
			RateBurst:   getEnvAsInt("LLM_RATE_BURST", 4),
		},
		Vector: VectorConfig{
			Backend:    strings.ToLower(getEnv("VECTOR_BACKEND", "memory")),
			MilvusAddr: getEnv("MILVUS_ADDR", "localhost:19530"),
			Collection: getEnv("VECTOR_COLLECTION", "bill_vectors"),
			ESAddrs:    splitList(getEnv("ES_ADDRS", "http://localhost:9200")),
			ESIndex:    getEnv("ES_INDEX", "bill_texts"),
			OllamaURL:  getEnv("OLLAMA_URL", "http://localhost:11434"),
			EmbedModel: getEnv("EMBED_MODEL", "nomic-embed-text"),
			TopK:       getEnvAsInt("VECTOR_TOP_K", 5),
		},
		Router: RouterConfig{
			ClassifyTimeout: getEnvAsDuration("CLASSIFY_TIMEOUT", 20*time.Second),
			ExtractTimeout:  getEnvAsDuration("EXTRACT_TIMEOUT", 10*time.Second),
			StoreTimeout:    getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
			SearchTimeout:   getEnvAsDuration("SEARCH_TIMEOUT", 10*time.Second),
			GenerateTimeout: getEnvAsDuration("GENERATE_TIMEOUT", 30*time.Second),
		},
		Index: IndexConfig{
			Workers:         getEnvAsInt("INDEX_WORKERS", 4),
			QueueSize:       getEnvAsInt("INDEX_QUEUE_SIZE", 256),
			JobTimeout:      getEnvAsDuration("INDEX_JOB_TIMEOUT", time.Minute),
			ReindexSchedule: getEnv("REINDEX_SCHEDULE", "@every 10m"),
			ReindexBatch:    getEnvAsInt("REINDEX_BATCH", 100),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
}

func loadDotEnv() {
	file := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config.dotenv.load_failed", "file", file, "error", err)
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError(CodeConfig, "DB_URL is required for the postgres driver", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return NewAppError(CodeConfig, "SQLITE_PATH is required for the sqlite driver", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "LLM_API_KEY is required for the openai provider", ErrInvalidInput)
		}
	case "ollama":
		if c.Vector.OllamaURL == "" {
			return NewAppError(CodeConfig, "OLLAMA_URL is required for the ollama provider", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "LLM_PROVIDER must be openai or ollama", ErrInvalidInput)
	}

	switch c.Vector.Backend {
	case "memory":
	case "milvus":
		if c.Vector.MilvusAddr == "" {
			return NewAppError(CodeConfig, "MILVUS_ADDR is required for the milvus backend", ErrInvalidInput)
		}
	case "elastic":
		if len(c.Vector.ESAddrs) == 0 {
			return NewAppError(CodeConfig, "ES_ADDRS is required for the elastic backend", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "VECTOR_BACKEND must be memory, milvus or elastic", ErrInvalidInput)
	}

	if c.Vector.TopK <= 0 {
		return NewAppError(CodeConfig, "VECTOR_TOP_K must be positive", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
