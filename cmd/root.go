// Package cmd wires the mfkb command line: configuration loading, engine
// construction, and the cobra command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bankops/mfkb/internal/chunk"
	"github.com/bankops/mfkb/internal/config"
	"github.com/bankops/mfkb/internal/embedding"
	"github.com/bankops/mfkb/internal/log"
	"github.com/bankops/mfkb/internal/policy"
	"github.com/bankops/mfkb/internal/rank"
	"github.com/bankops/mfkb/internal/retrieval"
	"github.com/bankops/mfkb/internal/vectorstore"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "mfkb",
	Short: "Mainframe knowledge-base retrieval engine",
	Long: `mfkb ingests incident reports, runbooks and technical notes into a
vector store and retrieves compliance-filtered context for a query.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log in JSON format")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}

// runtime bundles everything a command needs, plus cleanup.
type runtime struct {
	cfg    *config.Config
	logger log.Logger
	engine *retrieval.Engine
	pool   *pgxpool.Pool
}

func (r *runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// newRuntime loads config and builds the engine with its store, provider,
// cache and rate limiter.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	provider, err := embedding.NewOpenAI(embedding.OpenAIConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	generator := embedding.NewGenerator(provider, cfg.EmbeddingModel, logger,
		embedding.WithCache(embedding.NewCache(cfg.CacheTTL, cfg.CacheCapacity)),
		embedding.WithLimiter(embedding.NewLimiter(cfg.RequestsPerMinute, cfg.MaxConcurrency)),
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithMaxConcurrency(cfg.MaxConcurrency),
		embedding.WithMaxChars(cfg.MaxTextChars),
	)

	var (
		store vectorstore.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgStore, pgPool, err := vectorstore.OpenPostgres(ctx, vectorstore.PostgresConfig{
			ConnString: cfg.PostgresConnectionString(),
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		store, pool = pgStore, pgPool
	default:
		store = vectorstore.NewMemoryStore()
	}

	engine := retrieval.New(store, generator, logger,
		retrieval.WithDefaults(defaultOptions(cfg)),
		retrieval.WithSplitter(chunk.New(
			chunk.WithSize(cfg.ChunkSize),
			chunk.WithOverlap(cfg.ChunkOverlap),
		)),
	)

	return &runtime{cfg: cfg, logger: logger, engine: engine, pool: pool}, nil
}

// defaultOptions maps the loaded config onto per-call retrieval defaults.
func defaultOptions(cfg *config.Config) retrieval.Options {
	o := retrieval.DefaultOptions()
	o.TopK = cfg.TopK
	o.SimilarityThreshold = cfg.SimilarityThreshold
	o.MaxContextLength = cfg.MaxContextLength
	o.DiversityFactor = cfg.DiversityFactor
	o.Rerank = cfg.Rerank
	o.Strategy = rank.Strategy(cfg.WeightingStrategy)
	o.Policy = policy.Policy{
		AllowRestricted:      cfg.AllowRestricted,
		AllowConfidential:    cfg.AllowConfidential,
		Anonymize:            cfg.Anonymize,
		PrioritizeRegulatory: cfg.PrioritizeRegulatory,
	}
	return o
}
