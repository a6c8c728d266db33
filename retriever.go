package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/budget"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/core/retrieval"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider/openai"
	loadSql "github.com/siherrmann/retriever/sql"
)

// ErrBudgetExceeded marks a processing request rejected by the daily budget.
// The wrapped message carries the rejection reason.
var ErrBudgetExceeded = errors.New("processing budget exceeded")

// Retriever provides a unified interface to the processing pipeline, the
// search strategy and all database handlers.
type Retriever struct {
	DB        *helper.Database
	Chunks    *database.ChunksDBHandler
	Documents *database.DocumentsDBHandler
	Usage     *database.UsageDBHandler
	Pipeline  *pipeline.Pipeline // Optional processing pipeline
	Engine    *retrieval.Engine
	Strategy  *retrieval.Strategy
	Governor  *budget.Governor
	// Logging
	log *slog.Logger
}

// New creates a new Retriever instance with all handlers initialized.
// The pipeline is not set, use SetPipeline or UseDefaultPipeline before
// processing documents.
func New(config *helper.DatabaseConfiguration, embeddingDim int) (*Retriever, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("retriever", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, then chunks)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	usage, err := database.NewUsageDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create usage handler", err)
	}

	governor, err := budget.NewGovernor(usage)
	if err != nil {
		return nil, helper.NewError("create budget governor", err)
	}

	engine := retrieval.NewEngine(chunks)

	r := &Retriever{
		DB:        db,
		Chunks:    chunks,
		Documents: documents,
		Usage:     usage,
		Engine:    engine,
		Governor:  governor,
		log:       logger,
	}
	r.Strategy = retrieval.NewStrategy(engine, r.embedQuery, nil, logger)

	return r, nil
}

// Close closes the database connection
func (r *Retriever) Close() error {
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the processing pipeline for document and transcript
// processing. llm may be nil, searches then run without query expansion.
func (r *Retriever) SetPipeline(p *pipeline.Pipeline, llm retrieval.CompletionProvider) {
	r.Pipeline = p
	r.Strategy = retrieval.NewStrategy(r.Engine, r.embedQuery, llm, r.log)
}

// UseDefaultPipeline sets up the default hierarchical chunking and embedding
// pipeline backed by the OpenAI API (key from OPENAI_API_KEY). Chunk sizes
// follow the defaults: 4800-char parents, 1600-char children, 400-char overlap.
func (r *Retriever) UseDefaultPipeline() error {
	embeddingClient, err := openai.NewEmbeddingClient(openai.EmbeddingConfig{})
	if err != nil {
		return helper.NewError("create embedding client", err)
	}

	completionClient, err := openai.NewCompletionClient(openai.CompletionConfig{})
	if err != nil {
		return helper.NewError("create completion client", err)
	}

	embedder := pipeline.NewBatchEmbedder(embeddingClient, pipeline.DefaultMaxInputTokens)
	p := pipeline.NewPipeline(
		pipeline.DefaultHierarchicalChunker(),
		pipeline.DefaultTranscriptChunker(),
		embedder.EmbedBatch,
	)

	r.SetPipeline(p, completionClient)
	return nil
}

// ProcessDocument processes a document by:
// 1. Reserving the document against the tenant's daily processing budget
// 2. Inserting the document metadata (or superseding existing chunks)
// 3. Chunking and embedding the content through the pipeline
// 4. Inserting all chunks
// The reservation happens up front and atomically, so concurrent uploads for
// the same tenant cannot jointly overshoot the caps. The document's Content
// field is used for processing but not stored in the database. Returns the
// number of chunks inserted and any error encountered. A budget rejection
// returns an error wrapping ErrBudgetExceeded.
func (r *Retriever) ProcessDocument(ctx context.Context, doc *model.Document, opts *model.ChunkOptions) (int, error) {
	if r.Pipeline == nil {
		return 0, helper.NewError("process document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if doc.Content == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}

	// Store content temporarily and clear it before DB insert
	content := doc.Content
	doc.Content = ""

	contentBytes := int64(len(content))
	decision, err := r.Governor.Reserve(doc.TenantID, 1, contentBytes)
	if err != nil {
		return 0, helper.NewError("reserve budget", err)
	}
	if !decision.Allowed {
		return 0, fmt.Errorf("%w: %s", ErrBudgetExceeded, decision.Reason)
	}

	if doc.ID == 0 {
		err = r.Documents.InsertDocument(doc)
		if err != nil {
			return 0, helper.NewError("insert document", err)
		}
		r.log.Info("Inserted document", slog.String("document_rid", doc.RID.String()), slog.String("name", doc.Name))
	} else {
		// Reprocessing replaces the document's chunk set as a whole
		err = r.Chunks.DeleteChunksByDocument(doc.RID)
		if err != nil {
			return 0, helper.NewError("delete existing chunks", err)
		}
		r.log.Info("Superseding document chunks", slog.String("document_rid", doc.RID.String()))
	}

	chunks, err := r.Pipeline.ProcessDocument(ctx, content, opts)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	r.log.Info("Processed document into chunks", slog.Int("num_chunks", len(chunks)), slog.String("document_rid", doc.RID.String()))

	for _, chunk := range chunks {
		chunk.DocumentID = doc.ID
		chunk.DocumentRID = doc.RID
	}
	err = r.Chunks.InsertChunks(chunks)
	if err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	return len(chunks), nil
}

// ProcessTranscript processes timed transcript segments the same way as
// ProcessDocument, producing timestamped chunks instead of page-based ones.
func (r *Retriever) ProcessTranscript(ctx context.Context, doc *model.Document, segments []model.TranscriptSegment) (int, error) {
	if r.Pipeline == nil {
		return 0, helper.NewError("process transcript", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}
	if len(segments) == 0 {
		return 0, helper.NewError("process transcript", fmt.Errorf("transcript has no segments"))
	}

	var contentBytes int64
	for _, segment := range segments {
		contentBytes += int64(len(segment.Text))
	}

	decision, err := r.Governor.Reserve(doc.TenantID, 1, contentBytes)
	if err != nil {
		return 0, helper.NewError("reserve budget", err)
	}
	if !decision.Allowed {
		return 0, fmt.Errorf("%w: %s", ErrBudgetExceeded, decision.Reason)
	}

	if doc.ID == 0 {
		err = r.Documents.InsertDocument(doc)
		if err != nil {
			return 0, helper.NewError("insert document", err)
		}
		r.log.Info("Inserted transcript document", slog.String("document_rid", doc.RID.String()), slog.String("name", doc.Name))
	} else {
		err = r.Chunks.DeleteChunksByDocument(doc.RID)
		if err != nil {
			return 0, helper.NewError("delete existing chunks", err)
		}
	}

	chunks, err := r.Pipeline.ProcessTranscript(ctx, segments)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	for _, chunk := range chunks {
		chunk.DocumentID = doc.ID
		chunk.DocumentRID = doc.RID
	}
	err = r.Chunks.InsertChunks(chunks)
	if err != nil {
		return 0, helper.NewError("insert chunks", err)
	}

	return len(chunks), nil
}

// Search runs a search request through the strategy: query expansion, the
// requested retrieval mode, merge and highlighting. Analytics are logged
// fire-and-forget and never fail the response.
func (r *Retriever) Search(ctx context.Context, request *model.SearchRequest) (*model.SearchResponse, error) {
	response, err := r.Strategy.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	go r.logSearchAnalytics(request, response)

	return response, nil
}

// CheckBudget reports whether the tenant may process fileCount files totalling
// totalBytes today, without reserving anything.
func (r *Retriever) CheckBudget(tenantID uuid.UUID, fileCount int, totalBytes int64) (*model.BudgetDecision, error) {
	return r.Governor.CheckBudget(tenantID, fileCount, totalBytes)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (r *Retriever) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Chunks.ChangeIndexType(ctx, indexType, params)
}

// embedQuery embeds a search query with the pipeline's embedder.
func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if r.Pipeline == nil || r.Pipeline.Embedder == nil {
		return nil, helper.NewError("embed query", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}

	embeddings, err := r.Pipeline.Embedder(ctx, []string{text})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return nil, helper.NewError("embed query", fmt.Errorf("expected one non-empty embedding, got %d", len(embeddings)))
	}

	return embeddings[0], nil
}

// logSearchAnalytics emits one analytics record per search for later tuning.
func (r *Retriever) logSearchAnalytics(request *model.SearchRequest, response *model.SearchResponse) {
	defer func() {
		// Analytics must never fail a served search
		_ = recover()
	}()

	r.log.Info("Search served",
		slog.String("query", request.Query),
		slog.String("mode", string(response.Metadata.Mode)),
		slog.Int("result_count", response.Metadata.ResultCount),
		slog.Int64("duration_ms", response.Metadata.DurationMs),
		slog.String("expanded_query", response.QueryExpansion.ExpandedQuery),
		slog.Bool("partial", response.Metadata.Partial),
	)
}
