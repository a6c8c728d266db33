package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document represents a source document or transcript owned by a tenant.
type Document struct {
	ID           int64     `json:"id"`
	RID          uuid.UUID `json:"rid"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Name         string    `json:"name"`
	DocumentType string    `json:"document_type,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	// Confidence is the extraction confidence of the document text (OCR,
	// transcription), used as a lexical search filter.
	Confidence float64  `json:"confidence,omitempty"`
	Parties    []string `json:"parties,omitempty"`
	Content    string   `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Metadata   Metadata `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The name defaults to the filename without extension.
func NewDocumentFromFile(tenantID uuid.UUID, filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	name := filename[:len(filename)-len(filepath.Ext(filename))]
	if name == "" {
		name = filename
	}

	return &Document{
		TenantID: tenantID,
		Name:     name,
		Content:  string(content),
		Metadata: metadata,
	}, nil
}
