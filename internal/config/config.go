// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, COACHD_ prefix)
//  2. Config file (~/.coachd/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Retrieval: embedding model, vector dimension, top-K, search mode
//   - Generation: Mistral model selection and sampling parameters
//   - Storage: PostgreSQL connection (see storage.go) and attachment bucket
//   - Server: HTTP listen address and JWT auth secret
//   - Observability: optional OTLP trace export
//
// Security: sensitive values (passwords, API keys) are never logged; the
// config directory uses 0750 permissions.
//
// Error Handling:
//   - Sentinel errors for Go-idiomatic checking with errors.Is()
//   - Wrapped with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedModel indicates the embedding model name is invalid.
	ErrInvalidEmbedModel = errors.New("invalid embedding model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates the retrieval result count is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidSearchMode indicates the vector search mode is not supported.
	ErrInvalidSearchMode = errors.New("invalid search mode")

	// ErrInvalidTemperature indicates the sampling temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates the nucleus sampling parameter is out of range.
	ErrInvalidTopP = errors.New("invalid top-p")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")
)

// Search mode identifiers used in Config.SearchMode.
// Approximate uses the ivfflat index (recall traded for speed); exact forces
// a full scan so the true nearest neighbor is always returned.
const (
	SearchModeApproximate = "approximate"
	SearchModeExact       = "exact"
)

const (
	// DefaultCohereModel is the default Cohere embedding model.
	// embed-multilingual-light-v3.0 outputs 384 dimensions, matching the
	// vector(384) column in the embeddings table.
	DefaultCohereModel = "embed-multilingual-light-v3.0"

	// DefaultEmbedDimension is the vector dimension the schema is built for.
	DefaultEmbedDimension = 384

	// DefaultMistralModel is the default generation model.
	DefaultMistralModel = "mistral-medium-2508"

	// DefaultMistralOCRModel is the default OCR model for image attachments.
	DefaultMistralOCRModel = "mistral-ocr-latest"

	// DefaultTopK is the default number of retrieval results.
	DefaultTopK = 3

	// MaxTopK bounds retrieval result counts to keep prompts small.
	MaxTopK = 20

	// MinJWTSecretLength is the minimum length for the HMAC signing secret.
	MinJWTSecretLength = 32
)

// Config stores application configuration.
// SECURITY: sensitive fields must never be logged. When adding new sensitive
// fields (passwords, API keys, tokens), keep them out of log statements.
type Config struct {
	// Retrieval configuration
	CohereAPIKey   string `mapstructure:"cohere_api_key"`
	CohereBaseURL  string `mapstructure:"cohere_base_url"`
	CohereModel    string `mapstructure:"cohere_model"`
	EmbedDimension int    `mapstructure:"embed_dimension"`
	TopK           int    `mapstructure:"top_k"`
	SearchMode     string `mapstructure:"search_mode"` // "approximate" (default) or "exact"

	// Generation configuration
	MistralAPIKey     string  `mapstructure:"mistral_api_key"`
	MistralBaseURL    string  `mapstructure:"mistral_base_url"`
	MistralModel      string  `mapstructure:"mistral_model"`
	MistralOCRModel   string  `mapstructure:"mistral_ocr_model"`
	MistralTimeoutSec int     `mapstructure:"mistral_timeout_seconds"`
	Temperature       float32 `mapstructure:"temperature"`
	TopP              float32 `mapstructure:"top_p"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RepetitionPenalty float32 `mapstructure:"repetition_penalty"`

	// PostgreSQL configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Attachment storage
	StorageBucket string `mapstructure:"storage_bucket"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`
	JWTSecret  string `mapstructure:"jwt_secret"`

	// Observability
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, config file, and environment.
// A missing config file is not an error; environment variables always win.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file: ~/.coachd/config.yaml (optional)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".coachd"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Environment variables: COACHD_POSTGRES_HOST, COACHD_COHERE_API_KEY, ...
	v.SetEnvPrefix("COACHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings, a convention
	// common in cloud deployments.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	v.SetDefault("cohere_base_url", "https://api.cohere.com")
	v.SetDefault("cohere_model", DefaultCohereModel)
	v.SetDefault("embed_dimension", DefaultEmbedDimension)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("search_mode", SearchModeApproximate)

	v.SetDefault("mistral_base_url", "https://api.mistral.ai")
	v.SetDefault("mistral_model", DefaultMistralModel)
	v.SetDefault("mistral_ocr_model", DefaultMistralOCRModel)
	v.SetDefault("mistral_timeout_seconds", 60)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("repetition_penalty", 1.05)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "coachd")
	v.SetDefault("postgres_dbname", "coachd")
	v.SetDefault("postgres_sslmode", "prefer")

	v.SetDefault("storage_bucket", "attachments")

	v.SetDefault("server_addr", "127.0.0.1:8080")

	v.SetDefault("service_name", "coachd")
	v.SetDefault("otlp_endpoint", "localhost:4318")

	v.SetDefault("log_level", "info")
}
