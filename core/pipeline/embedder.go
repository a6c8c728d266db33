package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/siherrmann/retriever/helper"
)

const (
	// EmbeddingBatchSize bounds how many texts go to the provider per call.
	EmbeddingBatchSize = 100
	// EmbeddingDimensions is the vector length of the reference model.
	EmbeddingDimensions = 1536
	// DefaultMaxInputTokens is the input budget of the reference model,
	// approximated as 4 chars per token during truncation.
	DefaultMaxInputTokens = 8191

	embedRetries = 3
)

// EmbeddingProvider generates one vector per input text, in input order.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchEmbedder embeds texts through a provider in bounded batches.
// Output always has the length and order of the input: entries that are empty
// after trimming are skipped at the provider and filled with empty vectors.
type BatchEmbedder struct {
	provider   EmbeddingProvider
	batchSize  int
	charBudget int
}

// NewBatchEmbedder creates an embedder over the given provider. maxTokens is
// the provider model's input budget; non-positive values fall back to the
// reference model's budget.
func NewBatchEmbedder(provider EmbeddingProvider, maxTokens int) *BatchEmbedder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxInputTokens
	}
	return &BatchEmbedder{
		provider:   provider,
		batchSize:  EmbeddingBatchSize,
		charBudget: maxTokens * 4,
	}
}

// EmbedBatch embeds all texts, preserving input length and order. A provider
// failure aborts the whole batch containing it after per-batch retries, no
// partial results are returned.
func (e *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for batchStart := 0; batchStart < len(texts); batchStart += e.batchSize {
		batchEnd := batchStart + e.batchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}

		var positions []int
		var inputs []string
		for i := batchStart; i < batchEnd; i++ {
			text := truncateToBudget(strings.TrimSpace(texts[i]), e.charBudget)
			if text == "" {
				results[i] = []float32{}
				continue
			}
			positions = append(positions, i)
			inputs = append(inputs, text)
		}

		if len(inputs) == 0 {
			continue
		}

		vectors, err := e.embedWithRetry(ctx, inputs)
		if err != nil {
			return nil, helper.NewError("embed batch", err)
		}
		if len(vectors) != len(inputs) {
			return nil, helper.NewError("embed batch", fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(inputs)))
		}

		// Scatter the vectors back to their original positions.
		for j, i := range positions {
			results[i] = vectors[j]
		}
	}

	return results, nil
}

// truncateToBudget cuts text to at most budget bytes, backing up to a rune
// boundary so a multi-byte character is never split.
func truncateToBudget(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// EmbedText embeds a single text.
func (e *BatchEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *BatchEmbedder) embedWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		var err error
		vectors, err = e.provider.EmbedBatch(ctx, inputs)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), embedRetries), ctx))
	if err != nil {
		return nil, err
	}

	return vectors, nil
}
