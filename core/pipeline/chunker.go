package pipeline

import (
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/model"
)

// Chunk size defaults, derived from token budgets at ~4 chars per token.
// Tuned empirically, override via HierarchicalChunker if needed.
const (
	// ParentChunkSizeChars is the target parent size (~1200 tokens).
	ParentChunkSizeChars = 4800
	// ChildChunkSizeChars is the target child size (~400 tokens). Parents at
	// or below this size get no children.
	ChildChunkSizeChars = 1600
	// ParentOverlapChars is the trailing window shared between adjacent
	// parents (~100 tokens).
	ParentOverlapChars = 400
)

// DefaultHierarchicalChunker creates a hierarchical chunker with the default
// parent/child sizes and overlap.
func DefaultHierarchicalChunker() ChunkFunc {
	return HierarchicalChunker(ParentChunkSizeChars, ChildChunkSizeChars, ParentOverlapChars)
}

// HierarchicalChunker creates a chunker that accumulates sentences into
// overlapping parent chunks and derives non-overlapping child chunks from
// every parent larger than childSize. A single sentence longer than
// parentSize still becomes one oversized chunk, sentences are never split
// mid-way.
func HierarchicalChunker(parentSize, childSize, overlap int) ChunkFunc {
	return func(text string, opts *model.ChunkOptions) ([]*model.Chunk, error) {
		if parentSize <= 0 || childSize <= 0 {
			return nil, fmt.Errorf("chunk sizes must be positive")
		}
		if overlap < 0 || overlap >= parentSize {
			return nil, fmt.Errorf("overlap must be non-negative and smaller than the parent size")
		}
		if opts == nil {
			opts = &model.ChunkOptions{}
		}

		sentences := SplitSentences(text)
		if len(sentences) == 0 {
			return []*model.Chunk{}, nil
		}

		var chunks []*model.Chunk
		parentIdx := 0
		bufStart := sentences[0].Start
		bufEnd := sentences[0].Start
		hasContent := false

		emitParent := func() {
			parent, children := buildParent(text, bufStart, bufEnd, parentIdx, childSize, opts)
			chunks = append(chunks, parent)
			chunks = append(chunks, children...)
			parentIdx++
		}

		for _, sentence := range sentences {
			if hasContent && sentence.End-bufStart > parentSize {
				emitParent()

				// Seed the next buffer with the trailing overlap window so
				// adjacent parents share context.
				nextStart := bufEnd - overlap
				if nextStart < bufStart {
					nextStart = bufStart
				}
				bufStart = nextStart
			} else if !hasContent {
				bufStart = sentence.Start
			}
			bufEnd = sentence.End
			hasContent = true
		}

		if hasContent {
			emitParent()
		}

		return chunks, nil
	}
}

// buildParent emits one parent chunk for the span [start, end) of text plus
// its derived children.
func buildParent(text string, start, end, parentIdx, childSize int, opts *model.ChunkOptions) (*model.Chunk, []*model.Chunk) {
	span := text[start:end]
	trimmedLeft := strings.TrimLeft(span, sentenceCutset)
	charStart := start + len(span) - len(trimmedLeft)
	content := strings.TrimRight(trimmedLeft, sentenceCutset)
	charEnd := charStart + len(content)

	parent := &model.Chunk{
		Content:        content,
		ChunkType:      model.ChunkTypeParent,
		ChunkIndex:     parentIdx,
		CharStart:      charStart,
		CharEnd:        charEnd,
		PageNumber:     pageAt(opts.PageBreaks, charStart),
		SectionHeading: headingAt(opts.SectionHeadings, charStart),
		Metadata:       model.Metadata{},
	}

	return parent, splitIntoChildren(parent, childSize, opts)
}

// splitIntoChildren re-segments a parent's content into non-overlapping child
// chunks. Parents at or below childSize get no children and double as their
// own retrievable leaf.
func splitIntoChildren(parent *model.Chunk, childSize int, opts *model.ChunkOptions) []*model.Chunk {
	if len(parent.Content) <= childSize {
		return nil
	}

	sentences := SplitSentences(parent.Content)
	if len(sentences) == 0 {
		return nil
	}

	var children []*model.Chunk
	childIdx := 0
	bufStart := sentences[0].Start
	bufEnd := sentences[0].End
	hasContent := false

	emitChild := func() {
		span := strings.TrimSpace(parent.Content[bufStart:bufEnd])
		charStart := parent.CharStart + bufStart
		parentIdx := parent.ChunkIndex
		children = append(children, &model.Chunk{
			Content:        span,
			ChunkType:      model.ChunkTypeChild,
			ChunkIndex:     childIdx,
			ParentIndex:    &parentIdx,
			CharStart:      charStart,
			CharEnd:        charStart + len(span),
			PageNumber:     pageAt(opts.PageBreaks, charStart),
			SectionHeading: headingAt(opts.SectionHeadings, charStart),
			Metadata:       model.Metadata{},
		})
		childIdx++
	}

	for _, sentence := range sentences {
		if hasContent && sentence.End-bufStart > childSize {
			emitChild()
			bufStart = sentence.Start
		} else if !hasContent {
			bufStart = sentence.Start
		}
		bufEnd = sentence.End
		hasContent = true
	}

	if hasContent {
		emitChild()
	}

	return children
}

// pageAt returns the 1-based page number at a document offset, counting the
// page breaks crossed before it. Returns nil if no page breaks are known.
func pageAt(pageBreaks []int, offset int) *int {
	if len(pageBreaks) == 0 {
		return nil
	}

	page := 1
	for _, breakOffset := range pageBreaks {
		if breakOffset > offset {
			break
		}
		page++
	}

	return &page
}

// headingAt returns the last section heading at or before a document offset,
// or nil if none precedes it.
func headingAt(headings []model.SectionHeadingMark, offset int) *string {
	var current *string
	for i := range headings {
		if headings[i].Offset > offset {
			break
		}
		current = &headings[i].Heading
	}

	return current
}
