package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	JWTSecret   string
	IngestRoles []string

	LLMProvider     string // "gemini" or "openai"
	GeminiAPIKey    string
	OpenAIAPIKey    string
	OpenAIModel     string
	ChatModel       string
	ClassifierModel string

	TikaURL          string
	TempDir          string
	MaxDownloadBytes int64

	FetchUserAgent    string
	FetchTimeout      time.Duration
	FetchMaxTries     int
	ImportConcurrency int
	ImportRatePerSec  float64
	MinContentChars   int
	WrapColumn        int

	ObjectStore        string // "local" or "gcs"
	ObjectStoreDir     string
	ObjectStoreBaseURL string
	GCSBucket          string

	StreamKeepAlive   time.Duration
	ContextCharBudget int
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var AppConfig Config

// LoadConfig populates AppConfig and exits the process on invalid configuration.
func LoadConfig() {
	cfg, err := Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	AppConfig = *cfg
}

// Load reads the optional .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	maxDownload, err := getEnvAsBytes("MAX_DOWNLOAD_BYTES", "25MB")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "campus_knowledge.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		IngestRoles: getEnvAsList("INGEST_ROLES", "admin,editor"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ChatModel:       getEnv("CHAT_MODEL", "gemini-1.5-flash-latest"),
		ClassifierModel: getEnv("CLASSIFIER_MODEL", "gemini-1.5-flash-latest"),

		TikaURL:          getEnv("TIKA_URL", "http://localhost:9998"),
		TempDir:          getEnv("TEMP_DIR", os.TempDir()),
		MaxDownloadBytes: maxDownload,

		FetchUserAgent:    getEnv("FETCH_USER_AGENT", defaultUserAgent),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 20*time.Second),
		FetchMaxTries:     getEnvAsInt("FETCH_MAX_TRIES", 3),
		ImportConcurrency: getEnvAsInt("IMPORT_CONCURRENCY", 4),
		ImportRatePerSec:  getEnvAsFloat("IMPORT_RATE_PER_SEC", 2),
		MinContentChars:   getEnvAsInt("MIN_CONTENT_CHARS", 40),
		WrapColumn:        getEnvAsInt("WRAP_COLUMN", 78),

		ObjectStore:        strings.ToLower(getEnv("OBJECT_STORE", "local")),
		ObjectStoreDir:     getEnv("OBJECT_STORE_DIR", "uploads"),
		ObjectStoreBaseURL: getEnv("OBJECT_STORE_BASE_URL", "http://localhost:8080/files"),
		GCSBucket:          getEnv("GCS_BUCKET", ""),

		StreamKeepAlive:   getEnvAsDuration("STREAM_KEEPALIVE", 15*time.Second),
		ContextCharBudget: getEnvAsInt("CONTEXT_CHAR_BUDGET", 12000),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for LLM_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want gemini or openai)", c.LLMProvider)
	}
	switch c.ObjectStore {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for OBJECT_STORE=gcs")
		}
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q (want local or gcs)", c.ObjectStore)
	}
	if c.FetchMaxTries < 1 {
		c.FetchMaxTries = 1
	}
	if c.ImportConcurrency < 1 {
		c.ImportConcurrency = 1
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBytes(key string, defaultValue string) (int64, error) {
	valueStr := getEnv(key, defaultValue)
	n, err := humanize.ParseBytes(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	return int64(n), nil
}

func getEnvAsList(key string, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
