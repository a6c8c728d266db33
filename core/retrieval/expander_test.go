package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func TestExpandQuery(t *testing.T) {
	t.Run("Parses a well-formed expansion", func(t *testing.T) {
		llm := &stubLLM{reply: `{"expanded_query": "termination of employment contract severance", "synonyms": ["dismissal"], "legal_concepts": ["wrongful termination"], "related_terms": ["notice period"]}`}

		expansion := ExpandQuery(context.Background(), llm, "employment termination")
		assert.Equal(t, "termination of employment contract severance", expansion.ExpandedQuery)
		assert.Equal(t, []string{"dismissal", "wrongful termination", "notice period"}, expansion.SuggestedTerms)
	})

	t.Run("Tolerates markdown fences around the JSON", func(t *testing.T) {
		llm := &stubLLM{reply: "```json\n{\"expanded_query\": \"lease rental agreement\", \"synonyms\": [\"tenancy\"]}\n```"}

		expansion := ExpandQuery(context.Background(), llm, "lease")
		assert.Equal(t, "lease rental agreement", expansion.ExpandedQuery)
		assert.Equal(t, []string{"tenancy"}, expansion.SuggestedTerms)
	})

	t.Run("Deduplicates suggested terms case-insensitively", func(t *testing.T) {
		llm := &stubLLM{reply: `{"expanded_query": "q", "synonyms": ["Breach", "breach"], "related_terms": ["breach", "damages"]}`}

		expansion := ExpandQuery(context.Background(), llm, "q")
		assert.Equal(t, []string{"Breach", "damages"}, expansion.SuggestedTerms)
	})

	t.Run("Malformed JSON falls back to the raw query", func(t *testing.T) {
		llm := &stubLLM{reply: "sorry, I cannot help with that"}

		expansion := ExpandQuery(context.Background(), llm, "contract breach")
		assert.Equal(t, "contract breach", expansion.ExpandedQuery)
		assert.Empty(t, expansion.SuggestedTerms)
	})

	t.Run("Empty expanded query falls back to the raw query", func(t *testing.T) {
		llm := &stubLLM{reply: `{"expanded_query": "", "synonyms": ["x"]}`}

		expansion := ExpandQuery(context.Background(), llm, "original")
		assert.Equal(t, "original", expansion.ExpandedQuery)
	})

	t.Run("Provider failure falls back to the raw query", func(t *testing.T) {
		llm := &stubLLM{err: fmt.Errorf("model unavailable")}

		expansion := ExpandQuery(context.Background(), llm, "contract breach")
		assert.Equal(t, "contract breach", expansion.ExpandedQuery)
		assert.Empty(t, expansion.SuggestedTerms)
	})

	t.Run("Nil provider skips expansion", func(t *testing.T) {
		expansion := ExpandQuery(context.Background(), nil, "plain query")
		assert.Equal(t, "plain query", expansion.ExpandedQuery)
		assert.Empty(t, expansion.SuggestedTerms)
	})
}
