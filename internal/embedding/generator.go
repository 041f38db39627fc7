package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/bankops/mfkb/internal/log"
)

// Generator defaults.
const (
	defaultBatchSize      = 100
	defaultMaxConcurrency = 5
	defaultMaxChars       = 8000
)

// RetryConfig bounds the backoff loop around provider calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Generator embeds texts through a Provider with caching, batching,
// rate limiting and retry.
type Generator struct {
	provider        Provider
	cache           *Cache
	limiter         *Limiter
	logger          log.Logger
	model           string
	batchSize       int
	maxConcurrency  int
	maxChars        int
	disableTruncate bool
	continueOnError bool
	retry           RetryConfig
}

// Option configures a Generator.
type Option func(*Generator)

// WithCache attaches an embedding cache.
func WithCache(c *Cache) Option { return func(g *Generator) { g.cache = c } }

// WithLimiter attaches a client-side rate limiter.
func WithLimiter(l *Limiter) Option { return func(g *Generator) { g.limiter = l } }

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithMaxConcurrency caps parallel provider calls.
func WithMaxConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

// WithMaxChars sets the per-text character limit before truncation.
func WithMaxChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithTruncationDisabled makes over-length texts an error instead of a
// silent cut.
func WithTruncationDisabled() Option {
	return func(g *Generator) { g.disableTruncate = true }
}

// WithContinueOnError keeps a Generate call going when one batch fails;
// the failed batch's vectors stay nil.
func WithContinueOnError() Option {
	return func(g *Generator) { g.continueOnError = true }
}

// WithRetry overrides the retry bounds.
func WithRetry(rc RetryConfig) Option {
	return func(g *Generator) { g.retry = rc }
}

// NewGenerator creates a Generator for the given provider and model.
func NewGenerator(provider Provider, model string, logger log.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	g := &Generator{
		provider:       provider,
		logger:         logger,
		model:          model,
		batchSize:      defaultBatchSize,
		maxConcurrency: defaultMaxConcurrency,
		maxChars:       defaultMaxChars,
		retry:          DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CacheStats reports hit/miss counts for one Generate call.
type CacheStats struct {
	Hits   int
	Misses int
}

// Generate embeds texts, returning vectors in input order. Identical texts
// are embedded once. With continueOnError, vectors for failed batches are
// nil and the call still succeeds.
func (g *Generator) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, _, err := g.GenerateWithStats(ctx, texts)
	return vectors, err
}

// GenerateWithStats is Generate plus cache hit/miss counts.
func (g *Generator) GenerateWithStats(ctx context.Context, texts []string) ([][]float32, CacheStats, error) {
	var stats CacheStats
	if len(texts) == 0 {
		return nil, stats, ErrEmptyInput
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		p, err := g.prepare(i, t)
		if err != nil {
			return nil, stats, err
		}
		prepared[i] = p
	}

	vectors := make([][]float32, len(texts))

	// keyed maps each unique cache key to the input positions that need
	// its vector, so duplicates cost one provider slot.
	keyed := make(map[string][]int)
	var missKeys []string
	for i, text := range prepared {
		key := cacheKey(g.provider.Name(), g.model, text)
		if g.cache != nil {
			if vec, ok := g.cache.Get(key); ok {
				vectors[i] = vec
				stats.Hits++
				continue
			}
		}
		stats.Misses++
		if _, seen := keyed[key]; !seen {
			missKeys = append(missKeys, key)
		}
		keyed[key] = append(keyed[key], i)
	}
	if len(missKeys) == 0 {
		return vectors, stats, nil
	}

	missTexts := make([]string, len(missKeys))
	for i, key := range missKeys {
		missTexts[i] = prepared[keyed[key][0]]
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrency)

	for start := 0; start < len(missTexts); start += g.batchSize {
		end := min(start+g.batchSize, len(missTexts))
		batchTexts := missTexts[start:end]
		batchKeys := missKeys[start:end]

		eg.Go(func() error {
			got, err := g.embedWithRetry(ctx, batchTexts)
			if err != nil {
				if g.continueOnError {
					g.logger.Warn("embedding batch failed, continuing",
						"texts", len(batchTexts),
						"error", err,
					)
					return nil
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, vec := range got {
				key := batchKeys[i]
				if g.cache != nil {
					g.cache.Put(key, vec)
				}
				for _, pos := range keyed[key] {
					vectors[pos] = vec
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, stats, err
	}
	return vectors, stats, nil
}

// prepare normalizes one input text and enforces the length limit.
func (g *Generator) prepare(i int, text string) (string, error) {
	text = normalize(text)
	if text == "" {
		return "", fmt.Errorf("text %d: %w", i, ErrEmptyInput)
	}
	if len(text) > g.maxChars {
		if g.disableTruncate {
			return "", fmt.Errorf("text %d is %d chars, limit %d: %w",
				i, len(text), g.maxChars, ErrTextTooLong)
		}
		g.logger.Warn("truncating text for embedding",
			"index", i,
			"chars", len(text),
			"limit", g.maxChars,
		)
		text = strings.TrimSpace(text[:g.maxChars])
	}
	return text, nil
}

// embedWithRetry calls the provider with limiter admission and exponential
// backoff for retryable errors.
func (g *Generator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := g.retry.InitialInterval

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		vecs, err := g.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, err
		}
		if attempt == g.retry.MaxRetries {
			break
		}

		wait := delay
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > wait {
			wait = rle.RetryAfter
		}
		g.logger.Debug("retrying embedding batch",
			"attempt", attempt+1,
			"delay", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
			delay = min(delay*2, g.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("embedding after %d retries: %w", g.retry.MaxRetries, lastErr)
}

// embedOnce performs a single admitted provider call.
func (g *Generator) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if g.limiter != nil {
		release, err := g.limiter.Admit(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	res, err := g.provider.CreateEmbeddings(ctx, texts, g.model)
	if err != nil {
		return nil, err
	}
	if len(res.Vectors) != len(texts) {
		return nil, &ProviderError{
			Provider: g.provider.Name(),
			Err:      fmt.Errorf("got %d vectors for %d texts", len(res.Vectors), len(texts)),
		}
	}
	return res.Vectors, nil
}

// normalize trims, strips control characters, and collapses runs of
// whitespace to single spaces.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// cacheKey derives a stable key from provider, model and normalized text.
func cacheKey(provider, model, text string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
