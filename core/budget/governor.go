package budget

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
)

// Daily processing caps per tenant. They bound downstream provider cost for
// chunking and embedding; search is never gated.
const (
	DailyFileLimit = 10
	DailyByteLimit = 250 * 1024 * 1024
)

// UsageStore persists day-keyed usage counters per tenant. ReserveUsage must
// reject atomically: if the increment would push the counters past the caps
// it changes nothing and returns a nil usage.
type UsageStore interface {
	SelectUsage(tenantID uuid.UUID, day time.Time) (*model.ProcessingUsage, error)
	ReserveUsage(tenantID uuid.UUID, day time.Time, files int, bytes int64, maxFiles int, maxBytes int64) (*model.ProcessingUsage, error)
}

// Governor gates processing work against the daily per-tenant budget.
// CheckBudget never mutates stored usage, only Reserve does.
type Governor struct {
	store UsageStore

	// now is replaceable in tests to pin the day boundary.
	now func() time.Time
}

// NewGovernor creates a new budget governor on top of a usage store.
func NewGovernor(store UsageStore) (*Governor, error) {
	if store == nil {
		return nil, helper.NewError("usage store validation", fmt.Errorf("usage store is nil"))
	}
	return &Governor{store: store, now: time.Now}, nil
}

// CheckBudget reports whether fileCount files totalling totalBytes may be
// processed today. A rejection is a structured decision with a reason, not
// an error; errors only report store failures.
func (g *Governor) CheckBudget(tenantID uuid.UUID, fileCount int, totalBytes int64) (*model.BudgetDecision, error) {
	usage, err := g.store.SelectUsage(tenantID, g.now())
	if err != nil {
		return nil, helper.NewError("select usage", err)
	}

	return decide(usage, fileCount, totalBytes), nil
}

// Reserve commits fileCount files and totalBytes against today's budget and
// returns the remaining headroom. The commit is conditional in the store, so
// concurrent reservations that each passed a check cannot jointly overshoot
// the caps: the loser comes back rejected.
func (g *Governor) Reserve(tenantID uuid.UUID, fileCount int, totalBytes int64) (*model.BudgetDecision, error) {
	usage, err := g.store.ReserveUsage(tenantID, g.now(), fileCount, totalBytes, DailyFileLimit, DailyByteLimit)
	if err != nil {
		return nil, helper.NewError("reserve usage", err)
	}

	if usage == nil {
		// Lost a concurrent race after the check; report it like a failed check.
		current, err := g.store.SelectUsage(tenantID, g.now())
		if err != nil {
			return nil, helper.NewError("select usage", err)
		}
		decision := decide(current, fileCount, totalBytes)
		decision.Allowed = false
		if decision.Reason == "" {
			decision.Reason = fmt.Sprintf("concurrent reservations exhausted the daily budget (%d/day, %d MiB/day)", DailyFileLimit, DailyByteLimit/(1024*1024))
		}
		return decision, nil
	}

	remainingFiles, remainingBytes := remaining(usage)
	return &model.BudgetDecision{
		Allowed:        true,
		RemainingFiles: remainingFiles,
		RemainingBytes: remainingBytes,
	}, nil
}

// decide builds the decision for a request against the current usage.
func decide(usage *model.ProcessingUsage, fileCount int, totalBytes int64) *model.BudgetDecision {
	remainingFiles, remainingBytes := remaining(usage)
	decision := &model.BudgetDecision{
		Allowed:        true,
		RemainingFiles: remainingFiles,
		RemainingBytes: remainingBytes,
	}

	if usage.FilesProcessed+fileCount > DailyFileLimit {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("daily file limit exceeded (%d/day): %d processed, %d requested", DailyFileLimit, usage.FilesProcessed, fileCount)
		return decision
	}
	if usage.BytesProcessed+totalBytes > DailyByteLimit {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("daily data limit exceeded (%d MiB/day): %d bytes processed, %d bytes requested", DailyByteLimit/(1024*1024), usage.BytesProcessed, totalBytes)
		return decision
	}

	return decision
}

func remaining(usage *model.ProcessingUsage) (int, int64) {
	remainingFiles := DailyFileLimit - usage.FilesProcessed
	if remainingFiles < 0 {
		remainingFiles = 0
	}
	remainingBytes := int64(DailyByteLimit) - usage.BytesProcessed
	if remainingBytes < 0 {
		remainingBytes = 0
	}
	return remainingFiles, remainingBytes
}

// EstimateBytes sums the conservative per-type size estimates for files whose
// real size is unknown at check time.
func EstimateBytes(fileTypes []model.FileType) int64 {
	var total int64
	for _, fileType := range fileTypes {
		total += model.EstimatedFileSize(fileType)
	}
	return total
}
