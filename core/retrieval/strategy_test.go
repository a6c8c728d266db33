package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubEmbedQuery(embedding []float32, err error) EmbedQueryFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedding, err
	}
}

func hybridRequest(limit int) *model.SearchRequest {
	return &model.SearchRequest{
		TenantID: uuid.New(),
		Query:    "arbitration clause enforcement",
		Mode:     model.SearchModeHybrid,
		Limit:    limit,
	}
}

func TestStrategySearch(t *testing.T) {
	t.Run("Rejects a request without tenant or query", func(t *testing.T) {
		strategy := NewStrategy(NewEngine(&fakeChunks{}), stubEmbedQuery([]float32{1}, nil), nil, nil)

		_, err := strategy.Search(context.Background(), &model.SearchRequest{Query: "q"})
		assert.Error(t, err)

		_, err = strategy.Search(context.Background(), &model.SearchRequest{TenantID: uuid.New()})
		assert.Error(t, err)
	})

	t.Run("Lexical mode ranks hits at the baseline score", func(t *testing.T) {
		chunks := &fakeChunks{lexicalHits: []*model.RetrievedChunk{
			retrievedChunk("lease_agreement.pdf", 0.4, time.Now()),
		}}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), &model.SearchRequest{
			TenantID: uuid.New(),
			Query:    "arbitration",
			Mode:     model.SearchModeLexical,
		})
		assert.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.InDelta(t, LexicalBaselineScore, response.Results[0].SimilarityScore, 1e-9)
		assert.Equal(t, model.SearchModeLexical, response.Metadata.Mode)
		assert.Equal(t, 1, response.Metadata.ResultCount)
		assert.False(t, response.Metadata.Partial)
	})

	t.Run("Vector mode embeds the expanded query", func(t *testing.T) {
		chunks := &fakeChunks{vectorHits: []*model.RetrievedChunk{
			retrievedChunk("lease_agreement.pdf", 0.88, time.Now()),
		}}
		var embedded string
		embed := func(ctx context.Context, text string) ([]float32, error) {
			embedded = text
			return []float32{1, 0}, nil
		}
		llm := &stubLLM{reply: `{"expanded_query": "arbitration dispute resolution"}`}
		strategy := NewStrategy(NewEngine(chunks), embed, llm, nil)

		response, err := strategy.Search(context.Background(), &model.SearchRequest{
			TenantID: uuid.New(),
			Query:    "arbitration",
			Mode:     model.SearchModeVector,
		})
		assert.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.InDelta(t, 0.88, response.Results[0].SimilarityScore, 1e-9)
		assert.Equal(t, "arbitration dispute resolution", embedded, "Expected the expanded query to be embedded")
		assert.Equal(t, "arbitration dispute resolution", response.QueryExpansion.ExpandedQuery)
	})

	t.Run("Vector mode fails when the query cannot be embedded", func(t *testing.T) {
		strategy := NewStrategy(NewEngine(&fakeChunks{}), stubEmbedQuery(nil, fmt.Errorf("provider down")), nil, nil)

		_, err := strategy.Search(context.Background(), &model.SearchRequest{
			TenantID: uuid.New(),
			Query:    "arbitration",
			Mode:     model.SearchModeVector,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "embed query")
	})

	t.Run("Defaults to hybrid mode with default limit and threshold", func(t *testing.T) {
		chunks := &fakeChunks{}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), &model.SearchRequest{
			TenantID: uuid.New(),
			Query:    "arbitration",
		})
		assert.NoError(t, err)
		assert.Equal(t, model.SearchModeHybrid, response.Metadata.Mode)
		assert.Equal(t, model.DefaultSimilarityThreshold, response.Metadata.SimilarityThreshold)
		assert.Equal(t, model.DefaultSearchLimit/2, chunks.lastLexicalLimit)
		assert.Equal(t, model.DefaultSearchLimit/2, chunks.lastVectorLimit)
	})

	t.Run("Populates highlighted snippets", func(t *testing.T) {
		chunk := retrievedChunk("doc", 0.9, time.Now())
		chunk.Content = "The arbitration clause binds both parties to mediation first."
		chunks := &fakeChunks{vectorHits: []*model.RetrievedChunk{chunk}}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), &model.SearchRequest{
			TenantID: uuid.New(),
			Query:    "arbitration clause",
			Mode:     model.SearchModeVector,
		})
		assert.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Contains(t, response.Results[0].HighlightedSnippet, "**arbitration**")
	})

	t.Run("Records the search duration", func(t *testing.T) {
		strategy := NewStrategy(NewEngine(&fakeChunks{}), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), hybridRequest(10))
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, response.Metadata.DurationMs, int64(0))
	})
}

func TestStrategyHybrid(t *testing.T) {
	t.Run("Merges both branches with halved limits", func(t *testing.T) {
		bothID := uuid.New()
		vectorHit := hit(bothID, "both", "vector content", 0.75)
		lexicalHit := hit(bothID, "both", "lexical content", 0.4)
		lexOnly := hit(uuid.New(), "lexical only", "other content", 0.3)

		chunks := &fakeChunks{
			vectorHits:  []*model.RetrievedChunk{vectorHit},
			lexicalHits: []*model.RetrievedChunk{lexicalHit, lexOnly},
		}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), hybridRequest(10))
		assert.NoError(t, err)
		require.Len(t, response.Results, 2)

		assert.Equal(t, 5, chunks.lastLexicalLimit, "Expected the lexical branch to get half the limit")
		assert.Equal(t, 5, chunks.lastVectorLimit, "Expected the vector branch to get half the limit")

		assert.Equal(t, bothID, response.Results[0].DocumentID)
		assert.InDelta(t, 1.0, response.Results[0].SimilarityScore, 1e-9, "Expected 0.75*1.2+0.1 capped at 1.0")
		assert.False(t, response.Metadata.Partial)
	})

	t.Run("Degrades to vector results when the lexical branch fails", func(t *testing.T) {
		chunks := &fakeChunks{
			vectorHits: []*model.RetrievedChunk{retrievedChunk("survivor", 0.8, time.Now())},
			lexicalErr: fmt.Errorf("tsquery syntax error"),
		}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		response, err := strategy.Search(context.Background(), hybridRequest(10))
		assert.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "survivor", response.Results[0].DocumentName)
		assert.True(t, response.Metadata.Partial, "Expected the response to be marked partial")
	})

	t.Run("Degrades to lexical results when the embedding fails", func(t *testing.T) {
		chunks := &fakeChunks{
			lexicalHits: []*model.RetrievedChunk{retrievedChunk("survivor", 0.4, time.Now())},
		}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery(nil, fmt.Errorf("provider down")), nil, nil)

		response, err := strategy.Search(context.Background(), hybridRequest(10))
		assert.NoError(t, err)
		require.Len(t, response.Results, 1)
		assert.Equal(t, "survivor", response.Results[0].DocumentName)
		assert.InDelta(t, LexicalBaselineScore, response.Results[0].SimilarityScore, 1e-9)
		assert.True(t, response.Metadata.Partial)
	})

	t.Run("Fails when both branches fail", func(t *testing.T) {
		chunks := &fakeChunks{lexicalErr: fmt.Errorf("lexical down")}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery(nil, fmt.Errorf("vector down")), nil, nil)

		_, err := strategy.Search(context.Background(), hybridRequest(10))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "both branches failed")
	})

	t.Run("Limit of one gives each branch at least one slot", func(t *testing.T) {
		chunks := &fakeChunks{}
		strategy := NewStrategy(NewEngine(chunks), stubEmbedQuery([]float32{1}, nil), nil, nil)

		_, err := strategy.Search(context.Background(), hybridRequest(1))
		assert.NoError(t, err)
		assert.Equal(t, 1, chunks.lastLexicalLimit)
		assert.Equal(t, 1, chunks.lastVectorLimit)
	})
}
