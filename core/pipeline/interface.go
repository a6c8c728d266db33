package pipeline

import (
	"context"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// ChunkFunc splits document text into parent and child chunks with provenance.
type ChunkFunc func(text string, opts *model.ChunkOptions) ([]*model.Chunk, error)

// TranscriptChunkFunc chunks timed transcript segments into single-resolution
// chunks carrying timestamps.
type TranscriptChunkFunc func(segments []model.TranscriptSegment) ([]*model.Chunk, error)

// EmbedFunc generates one embedding per input text, preserving length and order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Pipeline combines chunking and embedding into the document processing path.
type Pipeline struct {
	Chunker           ChunkFunc
	TranscriptChunker TranscriptChunkFunc
	Embedder          EmbedFunc
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(chunker ChunkFunc, transcriptChunker TranscriptChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:           chunker,
		TranscriptChunker: transcriptChunker,
		Embedder:          embedder,
	}
}

// ProcessDocument chunks document text and embeds the retrievable leaves.
func (p *Pipeline) ProcessDocument(ctx context.Context, text string, opts *model.ChunkOptions) ([]*model.Chunk, error) {
	chunks, err := p.Chunker(text, opts)
	if err != nil {
		return nil, helper.NewError("chunk document", err)
	}

	err = p.embedLeaves(ctx, chunks)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// ProcessTranscript chunks transcript segments and embeds the resulting chunks.
func (p *Pipeline) ProcessTranscript(ctx context.Context, segments []model.TranscriptSegment) ([]*model.Chunk, error) {
	chunks, err := p.TranscriptChunker(segments)
	if err != nil {
		return nil, helper.NewError("chunk transcript", err)
	}

	err = p.embedLeaves(ctx, chunks)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// embedLeaves embeds the retrievable leaves of a chunk set: child chunks and
// parents without children. Parents that have children stay unembedded, they
// only provide context.
func (p *Pipeline) embedLeaves(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	hasChildren := map[int]bool{}
	for _, chunk := range chunks {
		if chunk.ChunkType == model.ChunkTypeChild && chunk.ParentIndex != nil {
			hasChildren[*chunk.ParentIndex] = true
		}
	}

	var leafIndices []int
	var leafTexts []string
	for i, chunk := range chunks {
		if chunk.ChunkType == model.ChunkTypeParent && hasChildren[chunk.ChunkIndex] {
			continue
		}
		leafIndices = append(leafIndices, i)
		leafTexts = append(leafTexts, chunk.Content)
	}

	if len(leafTexts) == 0 {
		return nil
	}

	embeddings, err := p.Embedder(ctx, leafTexts)
	if err != nil {
		return helper.NewError("embed chunks", err)
	}

	for j, i := range leafIndices {
		if len(embeddings[j]) > 0 {
			chunks[i].Embedding = embeddings[j]
		}
	}

	return nil
}
