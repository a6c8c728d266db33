package model

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingUsage is the per-tenant, per-calendar-day processing counter.
// A stored row for a prior day counts as zero usage for today; rows are
// superseded daily and never cleaned up explicitly.
type ProcessingUsage struct {
	ID             int64     `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Day            time.Time `json:"day"`
	FilesProcessed int       `json:"files_processed"`
	BytesProcessed int64     `json:"bytes_processed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BudgetDecision is the structured outcome of a budget check. A rejected
// request is an expected result, not an error.
type BudgetDecision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	RemainingFiles int    `json:"remaining_files"`
	RemainingBytes int64  `json:"remaining_bytes"`
}

type FileType string

const (
	FileTypeText        FileType = "text"
	FileTypeDocument    FileType = "document"
	FileTypeSpreadsheet FileType = "spreadsheet"
	FileTypeImage       FileType = "image"
	FileTypePDF         FileType = "pdf"
	FileTypeAudio       FileType = "audio"
	FileTypeVideo       FileType = "video"
)

// fileSizeEstimates are conservative byte estimates used when a file's real
// size is unknown at budget-check time.
var fileSizeEstimates = map[FileType]int64{
	FileTypeText:        256 * 1024,
	FileTypeDocument:    2 * 1024 * 1024,
	FileTypeSpreadsheet: 5 * 1024 * 1024,
	FileTypeImage:       8 * 1024 * 1024,
	FileTypePDF:         15 * 1024 * 1024,
	FileTypeAudio:       60 * 1024 * 1024,
	FileTypeVideo:       200 * 1024 * 1024,
}

// EstimatedFileSize returns the conservative byte estimate for a file type.
// Unknown types fall back to the document estimate.
func EstimatedFileSize(fileType FileType) int64 {
	if size, ok := fileSizeEstimates[fileType]; ok {
		return size
	}
	return fileSizeEstimates[FileTypeDocument]
}
