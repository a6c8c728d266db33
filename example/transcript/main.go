package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/core/budget"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "postgres",
		Password: "postgres",
		Name:     "retriever_test",
		Schema:   "public",
	}

	r, err := retriever.New(dbConfig, 1536)
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}
	defer r.Close()

	if err := r.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	tenantID := uuid.New()

	// Estimate the audio recording's cost against the daily budget before
	// transcription even starts
	estimated := budget.EstimateBytes([]model.FileType{model.FileTypeAudio})
	decision, err := r.CheckBudget(tenantID, 1, estimated)
	if err != nil {
		log.Fatalf("Failed to check budget: %v", err)
	}
	fmt.Printf("Budget check for one audio file: allowed=%v, %d files and %d bytes remaining\n",
		decision.Allowed, decision.RemainingFiles, decision.RemainingBytes)
	if !decision.Allowed {
		log.Fatalf("Processing rejected: %s", decision.Reason)
	}

	// Timed segments as they come out of a transcription service
	segments := []model.TranscriptSegment{
		{Text: "Counsel asked the witness when the lease agreement was signed.", Start: 0.0, End: 6.2},
		{Text: "The witness stated the lease was signed on the third of March.", Start: 6.2, End: 12.8},
		{Text: "Counsel then asked about the renewal clause in section four.", Start: 12.8, End: 18.1},
		{Text: "The witness confirmed the renewal required ninety days notice.", Start: 18.1, End: 24.5},
	}

	doc := &model.Document{
		TenantID:     tenantID,
		Name:         "deposition_2026_03_12",
		DocumentType: "transcript",
		Confidence:   0.9,
	}

	fmt.Println("Ingesting transcript...")
	numChunks, err := r.ProcessTranscript(context.Background(), doc, segments)
	if err != nil {
		log.Fatalf("Failed to process transcript: %v", err)
	}
	fmt.Printf("Inserted %d timestamped chunks\n", numChunks)

	// Search the transcript; results carry timestamps for citation
	response, err := r.Search(context.Background(), &model.SearchRequest{
		TenantID: tenantID,
		Query:    "when was the lease signed",
		Mode:     model.SearchModeHybrid,
	})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	for i, result := range response.Results {
		fmt.Printf("%d. %s (score %.2f)\n", i+1, result.DocumentName, result.SimilarityScore)
		fmt.Printf("   %s\n", result.HighlightedSnippet)
	}
}
