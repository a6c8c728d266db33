package model

import (
	"time"

	"github.com/google/uuid"
)

type ChunkType string

const (
	ChunkTypeParent ChunkType = "parent"
	ChunkTypeChild  ChunkType = "child"
)

// Chunk represents a contiguous span of source text at one retrieval resolution.
// Parents carry broad context, children carry precise spans for citation.
// Chunks are immutable once created; reprocessing a document replaces its
// chunk set as a whole.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Content     string    `json:"content"`
	ChunkType   ChunkType `json:"chunk_type"`
	// ChunkIndex is 0-based and sequential within its type. For children it
	// counts within the parent identified by ParentIndex.
	ChunkIndex  int  `json:"chunk_index"`
	ParentIndex *int `json:"parent_index,omitempty"`
	// Character offsets into the original document, CharEnd > CharStart.
	CharStart      int       `json:"char_start"`
	CharEnd        int       `json:"char_end"`
	PageNumber     *int      `json:"page_number,omitempty"`
	SectionHeading *string   `json:"section_heading,omitempty"`
	TimestampStart *float64  `json:"timestamp_start,omitempty"`
	TimestampEnd   *float64  `json:"timestamp_end,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Metadata       Metadata  `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// SectionHeadingMark marks a section heading starting at a character offset.
type SectionHeadingMark struct {
	Heading string `json:"heading"`
	Offset  int    `json:"offset"`
}

// ChunkOptions carries the breakpoint tables used to derive provenance.
// Both tables must be ordered ascending by offset.
type ChunkOptions struct {
	PageBreaks      []int                `json:"page_breaks,omitempty"`
	SectionHeadings []SectionHeadingMark `json:"section_headings,omitempty"`
}

// TranscriptSegment is one timed span of transcript text.
// Start must be monotonically non-decreasing across a transcript.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
