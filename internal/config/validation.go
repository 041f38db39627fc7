package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModel indicates the embedding model name is empty.
	ErrInvalidModel = errors.New("invalid embedding model")

	// ErrInvalidDimensions indicates the embedding dimensions are out of range.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidBatchSize indicates the batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidRateLimit indicates a rate-limit setting is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidCache indicates a cache setting is out of range.
	ErrInvalidCache = errors.New("invalid cache setting")

	// ErrInvalidRetrieval indicates a retrieval default is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval setting")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking setting")

	// ErrInvalidStoreBackend indicates an unknown vector store backend.
	ErrInvalidStoreBackend = errors.New("invalid store backend")

	// ErrInvalidPostgres indicates a PostgreSQL setting is invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL setting")
)

// validWeightingStrategies are the accepted composite weighting strategies.
var validWeightingStrategies = map[string]struct{}{
	"uniform":      {},
	"cosine_heavy": {},
	"adaptive":     {},
	"best":         {},
}

// Validate checks the configuration for consistency. It is called by Load
// (fail-fast) and may be called again after programmatic mutation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderAzure:
	default:
		return fmt.Errorf("%w: %q (must be one of: openai, azure)", ErrInvalidProvider, c.Provider)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModel)
	}
	if c.Dimensions < 1 || c.Dimensions > 8192 {
		return fmt.Errorf("%w: %d (must be 1-8192)", ErrInvalidDimensions, c.Dimensions)
	}
	if c.BatchSize < 1 || c.BatchSize > 2048 {
		return fmt.Errorf("%w: %d (must be 1-2048)", ErrInvalidBatchSize, c.BatchSize)
	}
	if c.MaxTextChars < 1 {
		return fmt.Errorf("%w: max_text_chars %d (must be positive)", ErrInvalidBatchSize, c.MaxTextChars)
	}
	if c.MaxConcurrency < 1 || c.MaxConcurrency > 64 {
		return fmt.Errorf("%w: max_concurrency %d (must be 1-64)", ErrInvalidRateLimit, c.MaxConcurrency)
	}

	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: requests_per_minute %d (must be positive)", ErrInvalidRateLimit, c.RequestsPerMinute)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("%w: rate_window %s (must be positive)", ErrInvalidRateLimit, c.RateWindow)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl %s (must be positive)", ErrInvalidCache, c.CacheTTL)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("%w: cache_capacity %d (must be positive)", ErrInvalidCache, c.CacheCapacity)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: top_k %d (must be 1-100)", ErrInvalidRetrieval, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %v (must be 0-1)", ErrInvalidRetrieval, c.SimilarityThreshold)
	}
	if c.MaxContextLength < 1 {
		return fmt.Errorf("%w: max_context_length %d (must be positive)", ErrInvalidRetrieval, c.MaxContextLength)
	}
	if c.DiversityFactor < 0 || c.DiversityFactor > 1 {
		return fmt.Errorf("%w: diversity_factor %v (must be 0-1)", ErrInvalidRetrieval, c.DiversityFactor)
	}
	if _, ok := validWeightingStrategies[c.WeightingStrategy]; !ok {
		return fmt.Errorf("%w: weighting_strategy %q (must be one of: uniform, cosine_heavy, adaptive, best)",
			ErrInvalidRetrieval, c.WeightingStrategy)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size %d (must be positive)", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d (must be 0 <= overlap < chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port %d (must be 1-65535)", ErrInvalidPostgres, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgres)
		}
	default:
		return fmt.Errorf("%w: %q (must be one of: memory, postgres)", ErrInvalidStoreBackend, c.StoreBackend)
	}

	return nil
}
