package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type SearchMode string

const (
	SearchModeLexical SearchMode = "lexical"
	SearchModeVector  SearchMode = "vector"
	SearchModeHybrid  SearchMode = "hybrid"
)

// Defaults applied by SearchRequest.Validate.
const (
	DefaultSearchLimit         = 10
	DefaultSimilarityThreshold = 0.7
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SearchFilters narrows a search to a subset of documents.
type SearchFilters struct {
	DocumentTypes []string   `json:"document_types,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	// Parties filters results to documents whose party list contains one of
	// the given names as a substring (case-insensitive).
	Parties             []string `json:"parties,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty" validate:"gte=0,lte=1"`
}

// SearchRequest is a single retrieval query against a tenant's index.
type SearchRequest struct {
	TenantID            uuid.UUID     `json:"tenant_id" validate:"required"`
	Query               string        `json:"query" validate:"required"`
	Mode                SearchMode    `json:"mode" validate:"omitempty,oneof=lexical vector hybrid"`
	Filters             SearchFilters `json:"filters"`
	Limit               int           `json:"limit" validate:"omitempty,gte=1,lte=100"`
	SimilarityThreshold float64       `json:"similarity_threshold" validate:"gte=0,lte=1"`
}

// Validate checks the request and fills in defaults for mode, limit and
// similarity threshold.
func (r *SearchRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Mode == "" {
		r.Mode = SearchModeHybrid
	}
	if r.Limit == 0 {
		r.Limit = DefaultSearchLimit
	}
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return nil
}

// Expansion is the best-effort enrichment of a user query.
type Expansion struct {
	ExpandedQuery  string   `json:"expanded_query"`
	SuggestedTerms []string `json:"suggested_terms"`
}

// SearchResult is one ranked document in a search response.
// SimilarityScore is in [0, 2]: vector similarity boosted for rank, or the
// lexical baseline for keyword-only matches.
type SearchResult struct {
	DocumentID         uuid.UUID `json:"document_id"`
	DocumentName       string    `json:"document_name"`
	DocumentType       string    `json:"document_type,omitempty"`
	Summary            string    `json:"summary,omitempty"`
	SimilarityScore    float64   `json:"similarity_score"`
	ExtractedText      string    `json:"extracted_text"`
	HighlightedSnippet string    `json:"highlighted_snippet,omitempty"`
	Metadata           Metadata  `json:"metadata,omitempty"`
}

// RetrievedChunk is one raw row from a lexical or vector chunk search,
// carrying the document fields needed to build a SearchResult.
// Score is the cosine similarity for vector hits and the ts_rank for
// lexical hits.
type RetrievedChunk struct {
	ChunkID      int64     `json:"chunk_id"`
	DocumentRID  uuid.UUID `json:"document_rid"`
	DocumentName string    `json:"document_name"`
	DocumentType string    `json:"document_type"`
	Summary      string    `json:"summary"`
	Parties      []string  `json:"parties,omitempty"`
	DocMetadata  Metadata  `json:"doc_metadata,omitempty"`
	DocCreatedAt time.Time `json:"doc_created_at"`
	Content      string    `json:"content"`
	ChunkType    ChunkType `json:"chunk_type"`
	ChunkIndex   int       `json:"chunk_index"`
	Score        float64   `json:"score"`
}

// SearchMetadata describes how a response was produced.
type SearchMetadata struct {
	Mode                SearchMode `json:"mode"`
	ResultCount         int        `json:"result_count"`
	DurationMs          int64      `json:"duration_ms"`
	SimilarityThreshold float64    `json:"similarity_threshold"`
	// Partial is true when one branch of a hybrid search failed and the
	// response carries only the surviving branch.
	Partial bool `json:"partial,omitempty"`
}

// SearchResponse is the full result of one search request.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	QueryExpansion Expansion      `json:"query_expansion"`
	Metadata       SearchMetadata `json:"metadata"`
}
