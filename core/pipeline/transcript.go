package pipeline

import (
	"fmt"
	"strings"

	"github.com/siherrmann/retriever/model"
)

// DefaultTranscriptChunker creates a transcript chunker with the default
// parent chunk size.
func DefaultTranscriptChunker() TranscriptChunkFunc {
	return TranscriptChunker(ParentChunkSizeChars)
}

// TranscriptChunker creates a chunker over timed transcript segments.
// Segments accumulate into a buffer flushed when the next segment would push
// it past maxChunkSize. Transcript chunks are single-resolution: they carry
// timestamps instead of children, the first buffered segment's start and the
// most recent segment's end.
func TranscriptChunker(maxChunkSize int) TranscriptChunkFunc {
	return func(segments []model.TranscriptSegment) ([]*model.Chunk, error) {
		if maxChunkSize <= 0 {
			return nil, fmt.Errorf("max chunk size must be positive")
		}

		var chunks []*model.Chunk
		var parts []string
		var tsStart, tsEnd float64
		chunkIdx := 0
		bufStart := 0
		bufLen := 0

		emit := func() {
			content := strings.Join(parts, " ")
			start := tsStart
			end := tsEnd
			chunks = append(chunks, &model.Chunk{
				Content:        content,
				ChunkType:      model.ChunkTypeParent,
				ChunkIndex:     chunkIdx,
				CharStart:      bufStart,
				CharEnd:        bufStart + len(content),
				TimestampStart: &start,
				TimestampEnd:   &end,
				Metadata:       model.Metadata{},
			})
			chunkIdx++
			bufStart += len(content) + 1
			parts = nil
			bufLen = 0
		}

		for _, segment := range segments {
			text := strings.TrimSpace(segment.Text)
			if text == "" {
				continue
			}

			if len(parts) > 0 && bufLen+1+len(text) > maxChunkSize {
				emit()
			}

			if len(parts) == 0 {
				tsStart = segment.Start
				bufLen = len(text)
			} else {
				bufLen += 1 + len(text)
			}
			parts = append(parts, text)
			tsEnd = segment.End
		}

		if len(parts) > 0 {
			emit()
		}

		return chunks, nil
	}
}
