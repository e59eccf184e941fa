package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Repositories
	GitHubToken     string
	RepositoriesDir string

	// Sync scheduler
	EnableIncrementalUpdate bool
	UpdateIntervalDays      int
	PollInterval            time.Duration
	FailureBackoff          time.Duration

	// Analysis collaborator
	OpenAIEndpoint      string
	OpenAIAPIKey        string
	ChatModel           string
	AnalysisModel       string
	AnalysisMaxTokens   int
	AnalysisTemperature float32
	AnalysisStreaming   bool
	ContentConcurrency  int

	// Access log queue
	AccessLogQueueCapacity int
	AccessLogOverflow      string // "drop_oldest" or "reject"
	AccessLogDrainTimeout  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load loads the configuration from environment variables, after reading
// the given env files (.env when none are given). Missing files are ignored.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	return &Config{
		StorageType:             getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:              getEnv("SQLITE_PATH", "./docsync.db"),
		PostgresURL:             getEnv("POSTGRES_URL", ""),
		APIPort:                 getEnv("API_PORT", "8080"),
		APIHost:                 getEnv("API_HOST", "localhost"),
		APIEndpoint:             getEnv("API_ENDPOINT", "http://localhost:8080"),
		GitHubToken:             getEnv("GITHUB_TOKEN", ""),
		RepositoriesDir:         getEnv("REPOSITORIES_DIR", "./repositories"),
		EnableIncrementalUpdate: getEnvBool("ENABLE_INCREMENTAL_UPDATE", true),
		UpdateIntervalDays:      getEnvInt("UPDATE_INTERVAL", 5),
		PollInterval:            getEnvDuration("SYNC_POLL_INTERVAL", time.Minute),
		FailureBackoff:          getEnvDuration("SYNC_FAILURE_BACKOFF", time.Minute),
		OpenAIEndpoint:          getEnv("OPENAI_ENDPOINT", ""),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		ChatModel:               getEnv("CHAT_MODEL", "gpt-4o-mini"),
		AnalysisModel:           getEnv("ANALYSIS_MODEL", ""),
		AnalysisMaxTokens:       getEnvInt("ANALYSIS_MAX_TOKENS", 16384),
		AnalysisTemperature:     float32(getEnvFloat("ANALYSIS_TEMPERATURE", 0.3)),
		AnalysisStreaming:       getEnvBool("ANALYSIS_STREAMING", true),
		ContentConcurrency:      getEnvInt("CONTENT_CONCURRENCY", 3),
		AccessLogQueueCapacity:  getEnvInt("ACCESS_LOG_QUEUE_CAPACITY", 10000),
		AccessLogOverflow:       getEnv("ACCESS_LOG_OVERFLOW", "drop_oldest"),
		AccessLogDrainTimeout:   getEnvDuration("ACCESS_LOG_DRAIN_TIMEOUT", 30*time.Second),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
		LogFile:                 getEnv("LOG_FILE", ""),
	}, nil
}

// StalenessWindow returns how long a document may go without update before its repository is re-synced
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.UpdateIntervalDays) * 24 * time.Hour
}

// Model returns the model used for catalog analysis, falling back to the chat model
func (c *Config) Model() string {
	if c.AnalysisModel != "" {
		return c.AnalysisModel
	}
	return c.ChatModel
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 32); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.UpdateIntervalDays < 0 {
		return &ConfigError{Field: "UPDATE_INTERVAL", Message: "must not be negative"}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "SYNC_POLL_INTERVAL", Message: "must be positive"}
	}
	if c.AccessLogQueueCapacity <= 0 {
		return &ConfigError{Field: "ACCESS_LOG_QUEUE_CAPACITY", Message: "must be positive"}
	}
	if c.AccessLogOverflow != "drop_oldest" && c.AccessLogOverflow != "reject" {
		return &ConfigError{Field: "ACCESS_LOG_OVERFLOW", Message: "must be 'drop_oldest' or 'reject'"}
	}
	return nil
}

// ValidateAnalysis checks the settings needed to reach the analysis collaborator
func (c *Config) ValidateAnalysis() error {
	if c.OpenAIAPIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "API key is required for catalog analysis"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
