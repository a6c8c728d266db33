package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/model"
)

// CompletionProvider produces a text completion for a prompt.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const expansionPrompt = `You are a legal research assistant. Enrich the following search query with
legal-domain synonyms, concepts and related terms to improve document retrieval.

Query: %q

Respond with only a JSON object in this exact shape:
{"expanded_query": "<enhanced query>", "synonyms": ["..."], "legal_concepts": ["..."], "related_terms": ["..."]}`

type expansionReply struct {
	ExpandedQuery string   `json:"expanded_query"`
	Synonyms      []string `json:"synonyms"`
	LegalConcepts []string `json:"legal_concepts"`
	RelatedTerms  []string `json:"related_terms"`
}

// ExpandQuery asks the completion model to enrich a query before retrieval.
// Best-effort: any provider or parse failure falls back to the raw query, the
// expansion is never a hard dependency of search correctness.
func ExpandQuery(ctx context.Context, llm CompletionProvider, query string) model.Expansion {
	fallback := model.Expansion{ExpandedQuery: query, SuggestedTerms: []string{}}
	if llm == nil {
		return fallback
	}

	reply, err := llm.Complete(ctx, fmt.Sprintf(expansionPrompt, query))
	if err != nil {
		return fallback
	}

	var parsed expansionReply
	if err := json.Unmarshal([]byte(extractJSON(reply)), &parsed); err != nil {
		return fallback
	}

	expansion := model.Expansion{
		ExpandedQuery:  strings.TrimSpace(parsed.ExpandedQuery),
		SuggestedTerms: []string{},
	}
	if expansion.ExpandedQuery == "" {
		expansion.ExpandedQuery = query
	}

	seen := map[string]bool{}
	for _, terms := range [][]string{parsed.Synonyms, parsed.LegalConcepts, parsed.RelatedTerms} {
		for _, term := range terms {
			term = strings.TrimSpace(term)
			key := strings.ToLower(term)
			if term == "" || seen[key] {
				continue
			}
			seen[key] = true
			expansion.SuggestedTerms = append(expansion.SuggestedTerms, term)
		}
	}

	return expansion
}

// extractJSON cuts the first top-level JSON object out of a model reply,
// tolerating surrounding prose and markdown code fences.
func extractJSON(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return reply
	}
	return reply[start : end+1]
}
