package search

import (
	"context"
	"fmt"
)

// QueryEmbedder turns a search query into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs a nearest-neighbour query.
type VectorSearcher interface {
	SearchVector(ctx context.Context, collection string, query []float32, k int) ([]Hit, error)
}

// Semantic searches notes by embedding similarity.
type Semantic struct {
	embedder   QueryEmbedder
	vectors    VectorSearcher
	collection string
}

// NewSemantic creates a Searcher that embeds the query and searches collection.
func NewSemantic(embedder QueryEmbedder, vectors VectorSearcher, collection string) *Semantic {
	return &Semantic{embedder: embedder, vectors: vectors, collection: collection}
}

// Search embeds query and returns the closest notes.
func (s *Semantic) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}

	return s.vectors.SearchVector(ctx, s.collection, vec, limit)
}
