package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

const sampleContent = `This consulting agreement is entered into between Acme Corporation and Globex LLC.

The consultant shall provide software architecture services for a period of twelve months.
Compensation is due within thirty days of each monthly invoice.

Any dispute arising under this agreement shall be settled by binding arbitration in London.
Either party may terminate this agreement with ninety days written notice.

The consultant shall indemnify the client against third party claims arising from the services.
This agreement is governed by the laws of England and Wales.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
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

	// Set up the default pipeline (hierarchical chunking + OpenAI embeddings,
	// key from OPENAI_API_KEY)
	if err := r.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	tenantID := uuid.New()

	// Create document with content
	doc := &model.Document{
		TenantID:     tenantID,
		Name:         "consulting_agreement.pdf",
		DocumentType: "contract",
		Confidence:   0.95,
		Parties:      []string{"Acme Corporation", "Globex LLC"},
		Content:      sampleContent,
		Metadata: model.Metadata{
			"jurisdiction": "England and Wales",
		},
	}

	// Check the tenant's daily budget before processing
	decision, err := r.CheckBudget(tenantID, 1, int64(len(doc.Content)))
	if err != nil {
		log.Fatalf("Failed to check budget: %v", err)
	}
	if !decision.Allowed {
		log.Fatalf("Processing rejected: %s", decision.Reason)
	}

	// Process and insert document in one call
	fmt.Println("Ingesting document...")
	numChunks, err := r.ProcessDocument(context.Background(), doc, nil)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	// Run a hybrid search: query expansion, lexical + vector retrieval,
	// score merge and highlighting
	query := "who settles disputes under this contract"
	fmt.Printf("\nQuerying: %s\n", query)

	response, err := r.Search(context.Background(), &model.SearchRequest{
		TenantID: tenantID,
		Query:    query,
		Mode:     model.SearchModeHybrid,
		Limit:    5,
	})
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("Expanded query: %s\n", response.QueryExpansion.ExpandedQuery)
	fmt.Printf("Found %d results in %d ms\n\n", response.Metadata.ResultCount, response.Metadata.DurationMs)
	for i, result := range response.Results {
		fmt.Printf("%d. %s (score %.2f)\n", i+1, result.DocumentName, result.SimilarityScore)
		fmt.Printf("   %s\n", result.HighlightedSnippet)
	}
}
