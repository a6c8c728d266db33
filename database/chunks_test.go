package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test embeddings use 3 dimensions. The chunks table keeps the dimension of
// its first initialization, so every test in this package uses the same one.
const testEmbeddingDim = 3

func insertTestDocument(t *testing.T, documentsDbHandler *DocumentsDBHandler, tenantID uuid.UUID, name string) *model.Document {
	t.Helper()
	doc := &model.Document{
		TenantID:     tenantID,
		Name:         name,
		DocumentType: "contract",
		Summary:      "Test document summary",
		Confidence:   0.9,
		Metadata:     map[string]interface{}{},
	}
	err := documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)
	return doc
}

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(database, true)
		require.NoError(t, err)

		chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		require.NotNil(t, chunksDbHandler.db, "Expected NewChunksDBHandler to have a non-nil database instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, testEmbeddingDim, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestChunksInsert(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)

	doc := insertTestDocument(t, documentsDbHandler, uuid.New(), "chunk_insert.pdf")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	t.Run("Insert single chunk", func(t *testing.T) {
		parentIndex := 0
		pageNumber := 2
		heading := "Section 1. Definitions"
		chunk := &model.Chunk{
			DocumentID:     doc.ID,
			Content:        "The tenant shall pay rent on the first day of each month.",
			ChunkType:      model.ChunkTypeChild,
			ChunkIndex:     0,
			ParentIndex:    &parentIndex,
			CharStart:      0,
			CharEnd:        57,
			PageNumber:     &pageNumber,
			SectionHeading: &heading,
			Embedding:      []float32{0.1, 0.2, 0.3},
			Metadata:       map[string]interface{}{},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected InsertChunk to not return an error")
		assert.NotZero(t, chunk.ID, "Expected inserted chunk to have an ID")
		assert.Equal(t, doc.RID, chunk.DocumentRID, "Expected chunk to carry the document RID")
		require.NotNil(t, chunk.ParentIndex)
		assert.Equal(t, 0, *chunk.ParentIndex, "Expected parent index to survive the round trip")
		require.NotNil(t, chunk.PageNumber)
		assert.Equal(t, 2, *chunk.PageNumber, "Expected page number to survive the round trip")
	})

	t.Run("Insert chunk without embedding", func(t *testing.T) {
		chunk := &model.Chunk{
			DocumentID: doc.ID,
			Content:    "A parent chunk stored without an embedding.",
			ChunkType:  model.ChunkTypeParent,
			ChunkIndex: 0,
			CharEnd:    43,
			Metadata:   map[string]interface{}{},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected InsertChunk to accept a nil embedding")
		assert.NotZero(t, chunk.ID)
	})
}

func TestChunksInsertMany(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)

	doc := insertTestDocument(t, documentsDbHandler, uuid.New(), "chunk_batch.pdf")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	t.Run("Insert all chunks of a document in one transaction", func(t *testing.T) {
		chunks := []*model.Chunk{
			{
				DocumentID: doc.ID,
				Content:    "First parent chunk content.",
				ChunkType:  model.ChunkTypeParent,
				ChunkIndex: 0,
				CharEnd:    27,
				Metadata:   map[string]interface{}{},
			},
			{
				DocumentID: doc.ID,
				Content:    "First child chunk content.",
				ChunkType:  model.ChunkTypeChild,
				ChunkIndex: 0,
				CharEnd:    26,
				Embedding:  []float32{0.5, 0.5, 0.5},
				Metadata:   map[string]interface{}{},
			},
		}

		err := chunksDbHandler.InsertChunks(chunks)
		assert.NoError(t, err, "Expected InsertChunks to not return an error")
		for _, chunk := range chunks {
			assert.NotZero(t, chunk.ID, "Expected every inserted chunk to have an ID")
			assert.Equal(t, doc.RID, chunk.DocumentRID)
		}

		retrieved, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
		require.NoError(t, err)
		assert.Len(t, retrieved, 2, "Expected both chunks to be stored")
	})
}

func TestChunksDeleteByDocument(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)

	doc := insertTestDocument(t, documentsDbHandler, uuid.New(), "chunk_delete.pdf")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	for i := 0; i < 3; i++ {
		chunk := &model.Chunk{
			DocumentID: doc.ID,
			Content:    "Chunk to be superseded.",
			ChunkType:  model.ChunkTypeChild,
			ChunkIndex: i,
			CharEnd:    23,
			Metadata:   map[string]interface{}{},
		}
		require.NoError(t, chunksDbHandler.InsertChunk(chunk))
	}

	err = chunksDbHandler.DeleteChunksByDocument(doc.RID)
	assert.NoError(t, err, "Expected DeleteChunksByDocument to not return an error")

	remaining, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "Expected no chunks to remain after delete")
}

func TestChunksSelectBySimilarity(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)

	tenantID := uuid.New()
	doc := insertTestDocument(t, documentsDbHandler, tenantID, "similarity.pdf")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	// A chunk aligned with the query vector and one orthogonal to it.
	closeChunk := &model.Chunk{
		DocumentID: doc.ID,
		Content:    "Indemnification obligations of the contractor.",
		ChunkType:  model.ChunkTypeChild,
		ChunkIndex: 0,
		CharEnd:    46,
		Embedding:  []float32{1, 0, 0},
		Metadata:   map[string]interface{}{},
	}
	farChunk := &model.Chunk{
		DocumentID: doc.ID,
		Content:    "Schedule of exhibits.",
		ChunkType:  model.ChunkTypeChild,
		ChunkIndex: 1,
		CharEnd:    21,
		Embedding:  []float32{0, 1, 0},
		Metadata:   map[string]interface{}{},
	}
	require.NoError(t, chunksDbHandler.InsertChunk(closeChunk))
	require.NoError(t, chunksDbHandler.InsertChunk(farChunk))

	t.Run("Returns only chunks above the similarity threshold", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(tenantID, []float32{1, 0, 0}, 10, 0.7, nil)
		assert.NoError(t, err, "Expected SelectChunksBySimilarity to not return an error")
		require.Len(t, results, 1, "Expected only the aligned chunk above the threshold")
		assert.Equal(t, closeChunk.ID, results[0].ChunkID)
		assert.Equal(t, doc.RID, results[0].DocumentRID)
		assert.Equal(t, doc.Name, results[0].DocumentName)
		assert.InDelta(t, 1.0, results[0].Score, 0.001, "Expected an identical vector to score 1.0")
	})

	t.Run("Returns all matches with a zero threshold", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(tenantID, []float32{1, 0, 0}, 10, 0, nil)
		assert.NoError(t, err)
		assert.Len(t, results, 2, "Expected both chunks with threshold 0")
		// Ordered by similarity descending
		assert.Equal(t, closeChunk.ID, results[0].ChunkID)
	})

	t.Run("Filters by document type", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(tenantID, []float32{1, 0, 0}, 10, 0, []string{"invoice"})
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected no results for a non-matching document type")

		results, err = chunksDbHandler.SelectChunksBySimilarity(tenantID, []float32{1, 0, 0}, 10, 0, []string{"contract"})
		assert.NoError(t, err)
		assert.Len(t, results, 2, "Expected results for the matching document type")
	})

	t.Run("Does not return chunks of another tenant", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(uuid.New(), []float32{1, 0, 0}, 10, 0, nil)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected no results for an unknown tenant")
	})
}

func TestChunksSearchLexical(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)

	tenantID := uuid.New()
	doc := insertTestDocument(t, documentsDbHandler, tenantID, "lexical.pdf")
	defer documentsDbHandler.DeleteDocument(doc.RID)

	matching := &model.Chunk{
		DocumentID: doc.ID,
		Content:    "The arbitration clause requires disputes to be settled in London.",
		ChunkType:  model.ChunkTypeChild,
		ChunkIndex: 0,
		CharEnd:    65,
		Metadata:   map[string]interface{}{},
	}
	other := &model.Chunk{
		DocumentID: doc.ID,
		Content:    "Payment is due within thirty days of invoice receipt.",
		ChunkType:  model.ChunkTypeChild,
		ChunkIndex: 1,
		CharEnd:    53,
		Metadata:   map[string]interface{}{},
	}
	require.NoError(t, chunksDbHandler.InsertChunk(matching))
	require.NoError(t, chunksDbHandler.InsertChunk(other))

	t.Run("Finds chunks matching the query terms", func(t *testing.T) {
		results, err := chunksDbHandler.SearchChunksLexical(tenantID, "arbitration clause", 10, 0, nil)
		assert.NoError(t, err, "Expected SearchChunksLexical to not return an error")
		require.Len(t, results, 1, "Expected only the matching chunk")
		assert.Equal(t, matching.ID, results[0].ChunkID)
		assert.Greater(t, results[0].Score, 0.0, "Expected a positive rank for a match")
	})

	t.Run("Respects the confidence threshold", func(t *testing.T) {
		results, err := chunksDbHandler.SearchChunksLexical(tenantID, "arbitration", 10, 0.99, nil)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected no results above a confidence the document does not reach")
	})

	t.Run("Returns no results for an unknown tenant", func(t *testing.T) {
		results, err := chunksDbHandler.SearchChunksLexical(uuid.New(), "arbitration", 10, 0, nil)
		assert.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestChunksChangeIndexType(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)
	_ = documentsDbHandler

	t.Run("Change to HNSW index", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(context.Background(), "hnsw", map[string]interface{}{"m": 8, "ef_construction": 32})
		assert.NoError(t, err, "Expected ChangeIndexType to not return an error")
	})

	t.Run("Change back to IVFFlat index", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(context.Background(), "ivfflat", map[string]interface{}{"lists": 10})
		assert.NoError(t, err, "Expected ChangeIndexType to not return an error")
	})

	t.Run("Unsupported index type returns error", func(t *testing.T) {
		err := chunksDbHandler.ChangeIndexType(context.Background(), "btree", nil)
		assert.Error(t, err, "Expected error for unsupported index type")
		assert.Contains(t, err.Error(), "unsupported index type")
	})
}
