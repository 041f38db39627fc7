// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (MFKB_ prefix, runtime override)
//  2. Config file (~/.mfkb/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - Embedding: provider, model, dimensions, batch size, rate limits, cache
//   - Retrieval: topK, similarity threshold, context budget, diversity, rerank
//   - Policy: classification gating, anonymization, regulatory prioritization
//   - Storage: PostgreSQL/pgvector connection (see storage.go)
//
// Security: the API key and database password are never logged; both are
// masked in MarshalJSON. Validation lives in validation.go and uses sentinel
// errors so callers can match with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Vector store backend identifiers used in Config.StoreBackend.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Defaults for the embedding subsystem.
const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultDimensions     = 1536
	DefaultBatchSize      = 100
	DefaultMaxTextChars   = 8000
	DefaultMaxConcurrency = 5

	DefaultCacheTTL      = 24 * time.Hour
	DefaultCacheCapacity = 10000

	DefaultRequestsPerMinute = 300
	DefaultRateWindow        = time.Minute
)

// Defaults for the retrieval subsystem.
const (
	DefaultTopK             = 5
	DefaultMaxContextLength = 4000
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Embedding provider configuration
	Provider       string `mapstructure:"provider" json:"provider"` // "openai" (default), "azure"
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	Dimensions     int    `mapstructure:"dimensions" json:"dimensions"`
	APIKey         string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	BaseURL        string `mapstructure:"base_url" json:"base_url"`
	BatchSize      int    `mapstructure:"batch_size" json:"batch_size"`
	MaxTextChars   int    `mapstructure:"max_text_chars" json:"max_text_chars"`
	MaxConcurrency int    `mapstructure:"max_concurrency" json:"max_concurrency"`

	// Embedding cache
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity" json:"cache_capacity"`

	// Outbound rate limits
	RequestsPerMinute int           `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	RateWindow        time.Duration `mapstructure:"rate_window" json:"rate_window"`

	// Retrieval defaults
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	MaxContextLength    int     `mapstructure:"max_context_length" json:"max_context_length"`
	DiversityFactor     float64 `mapstructure:"diversity_factor" json:"diversity_factor"`
	Rerank              bool    `mapstructure:"rerank" json:"rerank"`
	WeightingStrategy   string  `mapstructure:"weighting_strategy" json:"weighting_strategy"`

	// Chunking
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Domain policy
	AllowRestricted      bool `mapstructure:"allow_restricted" json:"allow_restricted"`
	AllowConfidential    bool `mapstructure:"allow_confidential" json:"allow_confidential"`
	Anonymize            bool `mapstructure:"anonymize" json:"anonymize"`
	PrioritizeRegulatory bool `mapstructure:"prioritize_regulatory" json:"prioritize_regulatory"`

	// Vector store backend: "memory" or "postgres"
	StoreBackend string `mapstructure:"store_backend" json:"store_backend"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".mfkb")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated with defaults only, without touching
// the filesystem or environment. Used by tests and embedded callers.
func Default() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		EmbeddingModel:    DefaultEmbeddingModel,
		Dimensions:        DefaultDimensions,
		BatchSize:         DefaultBatchSize,
		MaxTextChars:      DefaultMaxTextChars,
		MaxConcurrency:    DefaultMaxConcurrency,
		CacheTTL:          DefaultCacheTTL,
		CacheCapacity:     DefaultCacheCapacity,
		RequestsPerMinute: DefaultRequestsPerMinute,
		RateWindow:        DefaultRateWindow,
		TopK:              DefaultTopK,
		MaxContextLength:  DefaultMaxContextLength,
		Rerank:            true,
		WeightingStrategy: "uniform",
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		Anonymize:         true,
		StoreBackend:      StoreMemory,
		PostgresHost:      "localhost",
		PostgresPort:      5432,
		PostgresUser:      "mfkb",
		PostgresDBName:    "mfkb",
		PostgresSSLMode:   "disable",
	}
}

func setDefaults() {
	viper.SetDefault("provider", ProviderOpenAI)
	viper.SetDefault("embedding_model", DefaultEmbeddingModel)
	viper.SetDefault("dimensions", DefaultDimensions)
	viper.SetDefault("batch_size", DefaultBatchSize)
	viper.SetDefault("max_text_chars", DefaultMaxTextChars)
	viper.SetDefault("max_concurrency", DefaultMaxConcurrency)

	viper.SetDefault("cache_ttl", DefaultCacheTTL)
	viper.SetDefault("cache_capacity", DefaultCacheCapacity)

	viper.SetDefault("requests_per_minute", DefaultRequestsPerMinute)
	viper.SetDefault("rate_window", DefaultRateWindow)

	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("similarity_threshold", 0.0)
	viper.SetDefault("max_context_length", DefaultMaxContextLength)
	viper.SetDefault("diversity_factor", 0.0)
	viper.SetDefault("rerank", true)
	viper.SetDefault("weighting_strategy", "uniform")

	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	viper.SetDefault("allow_restricted", false)
	viper.SetDefault("allow_confidential", false)
	viper.SetDefault("anonymize", true)
	viper.SetDefault("prioritize_regulatory", false)

	viper.SetDefault("store_backend", StoreMemory)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "mfkb")
	viper.SetDefault("postgres_password", "")
	viper.SetDefault("postgres_db_name", "mfkb")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables. Secrets are bound
// explicitly; everything else goes through the MFKB_ prefix.
func bindEnvVariables() {
	viper.SetEnvPrefix("MFKB")
	viper.AutomaticEnv()

	// Secrets: explicit bindings so the conventional names work too.
	_ = viper.BindEnv("api_key", "MFKB_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("postgres_password", "MFKB_POSTGRES_PASSWORD")
}

// maskSecret returns a masked representation of a sensitive value.
// Short values are fully masked to avoid leaking length information.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
