// Package retrieval serves k-nearest-neighbor chunk lookups.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

// ErrBadQuery marks a request-level validation failure: wrong vector
// dimension or non-positive k.
var ErrBadQuery = errors.New("invalid search query")

// Searcher is the store surface retrieval consumes.
type Searcher interface {
	KNN(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error)
	KNNFromLast(ctx context.Context, k int) ([]vectorstore.SearchResult, error)
}

// QueryEmbedder turns query text into a vector of the process-wide dimension.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service validates queries and delegates to the store's KNN, leaving result
// order untouched.
type Service struct {
	store     Searcher
	embedder  QueryEmbedder
	dimension int
	logger    *zap.Logger
}

// NewService creates a retrieval service over store, requiring query vectors
// of length dimension.
func NewService(store Searcher, embedder QueryEmbedder, dimension int, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, dimension: dimension, logger: logger}, nil
}

// Search returns the k chunks nearest to query, ascending by distance.
func (s *Service) Search(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrBadQuery, k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: vector has dimension %d, expected %d", ErrBadQuery, len(query), s.dimension)
	}
	return s.store.KNN(ctx, query, k)
}

// SearchText embeds text and searches with the resulting vector.
func (s *Service) SearchText(ctx context.Context, text string, k int) ([]vectorstore.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrBadQuery, k)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrBadQuery)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: text search requires an embedder", ErrBadQuery)
	}
	query, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.Search(ctx, query, k)
}

// SearchLast searches with the most recently stored embedding as the query.
// Smoke-testing aid.
func (s *Service) SearchLast(ctx context.Context, k int) ([]vectorstore.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrBadQuery, k)
	}
	return s.store.KNNFromLast(ctx, k)
}
