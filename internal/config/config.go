// Package config provides application configuration with multi-source priority.
//
// Sources, highest priority first:
//  1. Environment variables (QUILL_ prefix)
//  2. Config file (~/.quill/config.yaml)
//  3. Defaults
//
// Categories: AI (provider, model, embedder), storage (PostgreSQL), retrieval
// (threshold, top-k, context budget, timeouts), web search, HTTP server.
//
// Sensitive values (passwords, API keys) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors, checked with errors.Is().
var (
	ErrConfigNil           = errors.New("configuration is nil")
	ErrInvalidModelName    = errors.New("invalid model name")
	ErrInvalidEmbedder     = errors.New("invalid embedder model")
	ErrInvalidThreshold    = errors.New("similarity threshold out of range")
	ErrInvalidTopK         = errors.New("top-k out of range")
	ErrInvalidContextChars = errors.New("context budget out of range")
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
	ErrInvalidPostgresDB   = errors.New("invalid PostgreSQL database name")
	ErrInvalidTimeout      = errors.New("invalid timeout")
)

// Defaults for retrieval behavior. The similarity threshold and top-k mirror
// the values the answer pipeline was tuned with.
const (
	DefaultModelName       = "gemini-2.5-flash"
	DefaultEmbedderModel   = "gemini-embedding-001"
	DefaultSimilarity      = 0.7
	DefaultTopK            = 5
	DefaultContextChars    = 8000
	DefaultSourceTimeout   = 20 * time.Second
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultServerAddr      = ":8080"
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "prefer"
	MaxContextChars        = 200000
	MaxTopK                = 50
	MinSourceTimeout       = time.Second
	MaxSourceTimeout       = 5 * time.Minute
)

// Config stores the application configuration.
type Config struct {
	// AI
	ModelName     string  `mapstructure:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature"`

	// Retrieval
	SimilarityThreshold float32       `mapstructure:"similarity_threshold"`
	TopK                int           `mapstructure:"top_k"`
	ContextChars        int           `mapstructure:"context_chars"`
	SourceTimeout       time.Duration `mapstructure:"source_timeout"`
	ChunkSize           int           `mapstructure:"chunk_size"`
	ChunkOverlap        int           `mapstructure:"chunk_overlap"`

	// Web search
	WebSearchEnabled bool `mapstructure:"web_search_enabled"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Server
	ServerAddr string `mapstructure:"server_addr"`

	// Observability
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, the optional config file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("similarity_threshold", DefaultSimilarity)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("context_chars", DefaultContextChars)
	v.SetDefault("source_timeout", DefaultSourceTimeout)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("web_search_enabled", true)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", DefaultPostgresPort)
	v.SetDefault("postgres_user", "quill")
	v.SetDefault("postgres_dbname", "quill")
	v.SetDefault("postgres_sslmode", DefaultPostgresSSLMode)
	v.SetDefault("server_addr", DefaultServerAddr)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// configDir returns ~/.quill, creating it with restrictive permissions.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".quill")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedder)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, c.SimilarityThreshold)
	}
	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.ContextChars < 1 || c.ContextChars > MaxContextChars {
		return fmt.Errorf("%w: %d", ErrInvalidContextChars, c.ContextChars)
	}
	if c.SourceTimeout < MinSourceTimeout || c.SourceTimeout > MaxSourceTimeout {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, c.SourceTimeout)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDB)
	}
	return nil
}

// PostgresURL builds the connection URL for pgx and golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}
