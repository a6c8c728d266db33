package retrieval

import (
	"sort"

	"github.com/siherrmann/retriever/model"
)

// Ranking constants inherited from empirical tuning. Named rather than
// re-derived so compatible deployments can override them in one place.
var (
	// VectorBoost multiplies vector similarity scores during a hybrid merge,
	// vector hits are treated as higher-confidence.
	VectorBoost = 1.2
	// CorroborationBonus is added when both branches find the same document.
	CorroborationBonus = 0.1
	// CorroborationCap bounds the corroboration nudge. It caps the bonus,
	// it never lowers a score already above it.
	CorroborationCap = 1.0
	// LexicalBaselineScore is the flat nominal score of a lexical-only match.
	LexicalBaselineScore = 0.8
)

// MergeHybrid combines vector and lexical hits into one ranked result list.
// Vector hits come first with their score boosted; lexical hits are folded in,
// corroborating documents already found by vector search. Ordering is
// descending by score with ties broken by insertion order.
func MergeHybrid(vectorHits, lexicalHits []*model.RetrievedChunk, limit int) []model.SearchResult {
	results := dedupeByDocument(vectorHits)
	for i := range results {
		results[i].SimilarityScore *= VectorBoost
	}

	seen := map[string]int{}
	for i := range results {
		seen[results[i].DocumentID.String()] = i
	}

	for _, lexical := range dedupeByDocument(lexicalHits) {
		if i, found := seen[lexical.DocumentID.String()]; found {
			results[i].SimilarityScore = corroborate(results[i].SimilarityScore)
			continue
		}
		seen[lexical.DocumentID.String()] = len(results)
		results = append(results, lexical)
	}

	return rank(results, limit)
}

// RankSingle ranks the hits of a single branch without hybrid boosting.
func RankSingle(hits []*model.RetrievedChunk, limit int) []model.SearchResult {
	return rank(dedupeByDocument(hits), limit)
}

// corroborate nudges a score found by both branches upward. The nudge is
// capped, a score already at or above the cap keeps its value.
func corroborate(score float64) float64 {
	merged := score + CorroborationBonus
	if merged > CorroborationCap {
		if score >= CorroborationCap {
			return score
		}
		return CorroborationCap
	}
	return merged
}

// dedupeByDocument keeps one result per document: the best-scoring chunk,
// in first-appearance order.
func dedupeByDocument(hits []*model.RetrievedChunk) []model.SearchResult {
	var results []model.SearchResult
	seen := map[string]int{}

	for _, hit := range hits {
		key := hit.DocumentRID.String()
		if i, found := seen[key]; found {
			if hit.Score > results[i].SimilarityScore {
				results[i].SimilarityScore = hit.Score
				results[i].ExtractedText = hit.Content
			}
			continue
		}

		seen[key] = len(results)
		results = append(results, model.SearchResult{
			DocumentID:      hit.DocumentRID,
			DocumentName:    hit.DocumentName,
			DocumentType:    hit.DocumentType,
			Summary:         hit.Summary,
			SimilarityScore: hit.Score,
			ExtractedText:   hit.Content,
			Metadata:        hit.DocMetadata,
		})
	}

	return results
}

func rank(results []model.SearchResult, limit int) []model.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
