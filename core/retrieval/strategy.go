package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// DefaultBranchTimeout bounds each branch of a hybrid search join.
const DefaultBranchTimeout = 15 * time.Second

// EmbedQueryFunc embeds a query string for vector search.
type EmbedQueryFunc func(ctx context.Context, text string) ([]float32, error)

// Strategy runs a search request end to end: query expansion, the requested
// retrieval branches, merge and highlighting.
type Strategy struct {
	engine     *Engine
	embedQuery EmbedQueryFunc
	llm        CompletionProvider
	logger     *slog.Logger

	// BranchTimeout bounds each branch of a hybrid search.
	BranchTimeout time.Duration
}

// NewStrategy creates a new search strategy. llm may be nil, search then runs
// without query expansion.
func NewStrategy(engine *Engine, embedQuery EmbedQueryFunc, llm CompletionProvider, logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Strategy{
		engine:        engine,
		embedQuery:    embedQuery,
		llm:           llm,
		logger:        logger,
		BranchTimeout: DefaultBranchTimeout,
	}
}

type branchResult struct {
	hits []*model.RetrievedChunk
	err  error
}

// Search validates the request, expands the query and runs the requested
// mode. In hybrid mode one failed branch degrades the response to the
// surviving branch, marked partial, instead of failing the search.
func (s *Strategy) Search(ctx context.Context, request *model.SearchRequest) (*model.SearchResponse, error) {
	start := time.Now()

	err := request.Validate()
	if err != nil {
		return nil, helper.NewError("validate search request", err)
	}

	expansion := ExpandQuery(ctx, s.llm, request.Query)

	var results []model.SearchResult
	partial := false

	switch request.Mode {
	case model.SearchModeLexical:
		var hits []*model.RetrievedChunk
		hits, err = s.lexicalBranch(ctx, request, expansion.ExpandedQuery, request.Limit)
		if err == nil {
			results = RankSingle(hits, request.Limit)
		}
	case model.SearchModeVector:
		var hits []*model.RetrievedChunk
		hits, err = s.vectorBranch(ctx, request, expansion.ExpandedQuery, request.Limit)
		if err == nil {
			results = RankSingle(hits, request.Limit)
		}
	case model.SearchModeHybrid:
		results, partial, err = s.hybridSearch(ctx, request, expansion.ExpandedQuery)
	default:
		err = fmt.Errorf("unknown search mode %v", request.Mode)
	}
	if err != nil {
		return nil, helper.NewError("search", err)
	}

	terms := highlightTerms(request.Query, expansion)
	for i := range results {
		results[i].HighlightedSnippet = HighlightSnippet(results[i].ExtractedText, terms, DefaultSnippetMax)
	}

	return &model.SearchResponse{
		Results:        results,
		QueryExpansion: expansion,
		Metadata: model.SearchMetadata{
			Mode:                request.Mode,
			ResultCount:         len(results),
			DurationMs:          time.Since(start).Milliseconds(),
			SimilarityThreshold: request.SimilarityThreshold,
			Partial:             partial,
		},
	}, nil
}

// hybridSearch runs both branches concurrently with halved limits and a
// per-branch timeout, then merges. The branches read independent data and
// join only after both complete.
func (s *Strategy) hybridSearch(ctx context.Context, request *model.SearchRequest, query string) ([]model.SearchResult, bool, error) {
	subLimit := request.Limit / 2
	if subLimit < 1 {
		subLimit = 1
	}

	lexicalCh := make(chan branchResult, 1)
	vectorCh := make(chan branchResult, 1)

	go func() {
		branchCtx, cancel := context.WithTimeout(ctx, s.BranchTimeout)
		defer cancel()
		hits, err := s.lexicalBranch(branchCtx, request, query, subLimit)
		lexicalCh <- branchResult{hits: hits, err: err}
	}()
	go func() {
		branchCtx, cancel := context.WithTimeout(ctx, s.BranchTimeout)
		defer cancel()
		hits, err := s.vectorBranch(branchCtx, request, query, subLimit)
		vectorCh <- branchResult{hits: hits, err: err}
	}()

	lexical := <-lexicalCh
	vector := <-vectorCh

	if lexical.err != nil && vector.err != nil {
		return nil, false, fmt.Errorf("both branches failed: lexical: %v, vector: %v", lexical.err, vector.err)
	}

	partial := false
	if lexical.err != nil {
		s.logger.Warn("Lexical branch failed, degrading to vector results", "error", lexical.err)
		partial = true
	}
	if vector.err != nil {
		s.logger.Warn("Vector branch failed, degrading to lexical results", "error", vector.err)
		partial = true
	}

	return MergeHybrid(vector.hits, lexical.hits, request.Limit), partial, nil
}

func (s *Strategy) lexicalBranch(ctx context.Context, request *model.SearchRequest, query string, limit int) ([]*model.RetrievedChunk, error) {
	return s.engine.LexicalRetrieve(ctx, request.TenantID, query, limit, request.Filters)
}

func (s *Strategy) vectorBranch(ctx context.Context, request *model.SearchRequest, query string, limit int) ([]*model.RetrievedChunk, error) {
	embedding, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	return s.engine.VectorRetrieve(ctx, request.TenantID, embedding, limit, request.SimilarityThreshold, request.Filters)
}

// highlightTerms builds the term list used for snippet highlighting: the
// suggested expansion terms plus the significant words of the raw query.
func highlightTerms(query string, expansion model.Expansion) []string {
	terms := append([]string{}, expansion.SuggestedTerms...)
	for _, word := range strings.Fields(query) {
		if len(word) > 3 {
			terms = append(terms, word)
		}
	}
	return terms
}
