package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Gateway batches texts through an embedding provider and validates the
// result against the process-wide dimension D.
//
// The Gateway normalizes provider failures to ErrProvider and any count or
// per-vector length deviation to ErrDimensionMismatch; the result is
// all-or-nothing per call.
type Gateway struct {
	provider  Provider
	dimension int
	model     string
	logger    *zap.Logger
	metrics   *Metrics
}

// NewGateway creates a Gateway around provider, requiring every returned
// vector to have length dimension.
func NewGateway(provider Provider, dimension int, model string, logger *zap.Logger, metrics *Metrics) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gateway{
		provider:  provider,
		dimension: dimension,
		model:     model,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Dimension returns the configured embedding dimension D.
func (g *Gateway) Dimension() int {
	return g.dimension
}

// EmbedBatch embeds texts in order, returning exactly len(texts) vectors of
// length D.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		g.metrics.RecordGeneration(g.model, "embed_batch", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := g.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		genErr = normalizeProviderErr(err)
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: provider returned %d vectors for %d texts",
			ErrDimensionMismatch, len(vectors), len(texts))
		return nil, genErr
	}
	for i, vec := range vectors {
		if len(vec) != g.dimension {
			genErr = fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				ErrDimensionMismatch, i, len(vec), g.dimension)
			return nil, genErr
		}
	}

	g.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Duration("duration", time.Since(start)))

	return vectors, nil
}

// EmbedQuery embeds a single query text, returning a vector of length D.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		g.metrics.RecordGeneration(g.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vector, err := g.provider.EmbedQuery(ctx, text)
	if err != nil {
		genErr = normalizeProviderErr(err)
		return nil, genErr
	}
	if len(vector) != g.dimension {
		genErr = fmt.Errorf("%w: query vector has dimension %d, expected %d",
			ErrDimensionMismatch, len(vector), g.dimension)
		return nil, genErr
	}

	return vector, nil
}

// normalizeProviderErr keeps gateway sentinels intact and wraps everything
// else (context errors included) as a provider failure.
func normalizeProviderErr(err error) error {
	switch {
	case isGatewayErr(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
}

func isGatewayErr(err error) bool {
	for _, sentinel := range []error{ErrProvider, ErrDimensionMismatch, ErrEmptyInput, ErrInvalidConfig} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
