// Package embedding turns text into vectors through an OpenAI-compatible
// provider, with caching, client-side rate limiting, and bounded retry in
// front of the API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Generate.
var (
	// ErrEmptyInput is returned when there is nothing to embed.
	ErrEmptyInput = errors.New("embedding: empty input")

	// ErrTextTooLong is returned when a text exceeds the character limit
	// and truncation is disabled.
	ErrTextTooLong = errors.New("embedding: text too long")
)

// Result is the provider response for one batch.
type Result struct {
	Vectors      [][]float32
	PromptTokens int64
	TotalTokens  int64
}

// Provider creates embeddings for a batch of texts.
type Provider interface {
	// CreateEmbeddings embeds texts with the given model. Vectors come
	// back in input order.
	CreateEmbeddings(ctx context.Context, texts []string, model string) (*Result, error)

	// Name identifies the provider for cache keys and logs.
	Name() string
}

// ProviderError wraps an API failure with enough detail to decide whether
// a retry is worthwhile.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Rate limits,
// server-side errors, and timeouts are worth retrying; auth and request
// errors are not.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	case e.Status == 400, e.Status == 401, e.Status == 403:
		return false
	}
	return transientError(e.Err)
}

// transientPatterns groups error substrings by category. Matched
// case-insensitively against err.Error(). String matching is a fallback
// for SDK errors that carry no status code.
var transientPatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable", "overloaded"},
	{"connection reset", "timeout", "deadline exceeded", "temporary"},
}

// transientError reports whether err looks transient.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range transientPatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// retryableError reports whether err should trigger another attempt.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	return transientError(err)
}
