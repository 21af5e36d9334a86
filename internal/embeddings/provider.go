// Package embeddings provides embedding generation for chunk texts.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProvider indicates the underlying provider failed to load or errored
	// mid-batch.
	ErrProvider = errors.New("embedding provider failed")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from the configured dimension, or a batch whose size
	// differs from the input. Recoverable at the caller: the orchestrator
	// treats it as a per-file error.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed".
	Provider string
	// Model is the embedding model name.
	Model string
	// CacheDir is the model cache directory.
	CacheDir string
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// LazyProvider defers provider construction until the first embedding
// request. Model initialization is expensive (ONNX runtime, model download),
// so the process starts without it; only requests that need embedding pay for
// it, and an initialization failure fails those requests rather than the
// process. The provider is initialized at most once and reused.
type LazyProvider struct {
	init      func() (Provider, error)
	dimension int

	once     sync.Once
	provider Provider
	err      error
}

// NewLazyProvider wraps an init function in an init-once lifecycle.
// dimension is the expected dimension, reported without initializing.
func NewLazyProvider(dimension int, init func() (Provider, error)) *LazyProvider {
	return &LazyProvider{init: init, dimension: dimension}
}

func (l *LazyProvider) ensure() (Provider, error) {
	l.once.Do(func() {
		l.provider, l.err = l.init()
		if l.err != nil {
			l.err = fmt.Errorf("%w: %v", ErrProvider, l.err)
		}
	})
	return l.provider, l.err
}

// EmbedDocuments initializes the provider if needed and delegates.
func (l *LazyProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return p.EmbedDocuments(ctx, texts)
}

// EmbedQuery initializes the provider if needed and delegates.
func (l *LazyProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p, err := l.ensure()
	if err != nil {
		return nil, err
	}
	return p.EmbedQuery(ctx, text)
}

// Dimension returns the expected embedding dimension.
func (l *LazyProvider) Dimension() int {
	return l.dimension
}

// Close releases the provider if it was ever initialized.
func (l *LazyProvider) Close() error {
	if l.provider != nil {
		return l.provider.Close()
	}
	return nil
}
