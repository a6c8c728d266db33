package retrieval

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// Engine runs the two independent retrieval branches over stored chunks.
type Engine struct {
	chunks database.ChunksDBHandlerFunctions
}

// NewEngine creates a new retrieval engine.
func NewEngine(chunks database.ChunksDBHandlerFunctions) *Engine {
	return &Engine{chunks: chunks}
}

// LexicalRetrieve performs full-text search over chunk content. Lexical
// matches have no intrinsic 0-1 score, every hit gets the flat baseline while
// the store's rank ordering is preserved.
func (e *Engine) LexicalRetrieve(ctx context.Context, tenantID uuid.UUID, query string, limit int, filters model.SearchFilters) ([]*model.RetrievedChunk, error) {
	hits, err := e.chunks.SearchChunksLexical(tenantID, query, limit, filters.ConfidenceThreshold, filters.DocumentTypes)
	if err != nil {
		return nil, helper.NewError("lexical search", err)
	}

	hits = filterChunks(hits, filters)
	for _, hit := range hits {
		hit.Score = LexicalBaselineScore
	}

	return hits, nil
}

// VectorRetrieve performs similarity search over chunk embeddings, returning
// hits at or above the similarity threshold with their true similarity score.
func (e *Engine) VectorRetrieve(ctx context.Context, tenantID uuid.UUID, embedding []float32, limit int, threshold float64, filters model.SearchFilters) ([]*model.RetrievedChunk, error) {
	hits, err := e.chunks.SelectChunksBySimilarity(tenantID, embedding, limit, threshold, filters.DocumentTypes)
	if err != nil {
		return nil, helper.NewError("vector search", err)
	}

	return filterChunks(hits, filters), nil
}

// filterChunks applies the in-memory filters the store does not cover:
// document date range and case-insensitive party substring match.
func filterChunks(hits []*model.RetrievedChunk, filters model.SearchFilters) []*model.RetrievedChunk {
	if filters.DateFrom == nil && filters.DateTo == nil && len(filters.Parties) == 0 {
		return hits
	}

	var filtered []*model.RetrievedChunk
	for _, hit := range hits {
		if filters.DateFrom != nil && hit.DocCreatedAt.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && hit.DocCreatedAt.After(*filters.DateTo) {
			continue
		}
		if len(filters.Parties) > 0 && !matchesParties(hit.Parties, filters.Parties) {
			continue
		}
		filtered = append(filtered, hit)
	}

	return filtered
}

func matchesParties(docParties, wanted []string) bool {
	for _, want := range wanted {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, party := range docParties {
			if strings.Contains(strings.ToLower(party), want) {
				return true
			}
		}
	}
	return false
}
