package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	InsertChunks(chunks []*model.Chunk) error
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	DeleteChunksByDocument(documentRID uuid.UUID) error
	SelectChunksBySimilarity(tenantID uuid.UUID, embedding []float32, limit int, threshold float64, documentTypes []string) ([]*model.RetrievedChunk, error)
	SearchChunksLexical(tenantID uuid.UUID, query string, limit int, minConfidence float64, documentTypes []string) ([]*model.RetrievedChunk, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates the full-text and vector indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		chunk.DocumentID,
		chunk.Content,
		chunk.ChunkType,
		chunk.ChunkIndex,
		chunk.ParentIndex,
		chunk.CharStart,
		chunk.CharEnd,
		chunk.PageNumber,
		chunk.SectionHeading,
		chunk.TimestampStart,
		chunk.TimestampEnd,
		embeddingOrNil(chunk.Embedding),
		chunk.Metadata,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.Content,
		&chunk.ChunkType,
		&chunk.ChunkIndex,
		&chunk.ParentIndex,
		&chunk.CharStart,
		&chunk.CharEnd,
		&chunk.PageNumber,
		&chunk.SectionHeading,
		&chunk.TimestampStart,
		&chunk.TimestampEnd,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertChunks inserts all chunks of one document in a single transaction,
// so a failed insert never leaves a partial chunk set behind.
func (h *ChunksDBHandler) InsertChunks(chunks []*model.Chunk) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, chunk := range chunks {
		row := tx.QueryRow(
			`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			chunk.DocumentID,
			chunk.Content,
			chunk.ChunkType,
			chunk.ChunkIndex,
			chunk.ParentIndex,
			chunk.CharStart,
			chunk.CharEnd,
			chunk.PageNumber,
			chunk.SectionHeading,
			chunk.TimestampStart,
			chunk.TimestampEnd,
			embeddingOrNil(chunk.Embedding),
			chunk.Metadata,
		)

		err := row.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.Content,
			&chunk.ChunkType,
			&chunk.ChunkIndex,
			&chunk.ParentIndex,
			&chunk.CharStart,
			&chunk.CharEnd,
			&chunk.PageNumber,
			&chunk.SectionHeading,
			&chunk.TimestampStart,
			&chunk.TimestampEnd,
			&chunk.CreatedAt,
		)
		if err != nil {
			return helper.NewError("scan", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit transaction", err)
	}

	return nil
}

// SelectChunksByDocument retrieves all chunks of a document ordered by type and index
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.Content,
			&chunk.ChunkType,
			&chunk.ChunkIndex,
			&chunk.ParentIndex,
			&chunk.CharStart,
			&chunk.CharEnd,
			&chunk.PageNumber,
			&chunk.SectionHeading,
			&chunk.TimestampStart,
			&chunk.TimestampEnd,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// DeleteChunksByDocument deletes all chunks of a document as a unit.
// Used to supersede the old chunk set when a document is reprocessed.
func (h *ChunksDBHandler) DeleteChunksByDocument(documentRID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return helper.NewError("delete chunks", err)
	}

	return nil
}

// SelectChunksBySimilarity performs cosine similarity search over stored
// embeddings, returning only chunks at or above the similarity threshold.
func (h *ChunksDBHandler) SelectChunksBySimilarity(tenantID uuid.UUID, embedding []float32, limit int, threshold float64, documentTypes []string) ([]*model.RetrievedChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5)`,
		tenantID,
		pgvector.NewVector(embedding),
		limit,
		threshold,
		pq.Array(documentTypes),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRetrievedChunks(rows)
}

// SearchChunksLexical performs full-text search over stored chunk content.
// The returned score is the ts_rank of the match, not a similarity.
func (h *ChunksDBHandler) SearchChunksLexical(tenantID uuid.UUID, query string, limit int, minConfidence float64, documentTypes []string) ([]*model.RetrievedChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_chunks_lexical($1, $2, $3, $4, $5)`,
		tenantID,
		query,
		limit,
		minConfidence,
		pq.Array(documentTypes),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRetrievedChunks(rows)
}

// embeddingOrNil maps an absent embedding to SQL NULL instead of an empty vector.
func embeddingOrNil(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func scanRetrievedChunks(rows *sql.Rows) ([]*model.RetrievedChunk, error) {
	var results []*model.RetrievedChunk
	for rows.Next() {
		rc := &model.RetrievedChunk{}
		err := rows.Scan(
			&rc.ChunkID,
			&rc.DocumentRID,
			&rc.DocumentName,
			&rc.DocumentType,
			&rc.Summary,
			pq.Array(&rc.Parties),
			&rc.DocMetadata,
			&rc.DocCreatedAt,
			&rc.Content,
			&rc.ChunkType,
			&rc.ChunkIndex,
			&rc.Score,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		results = append(results, rc)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index")

	var createIndexSQL string

	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)

	case "ivfflat":
		lists := 100
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Created vector index", "type", indexType)

	return nil
}
