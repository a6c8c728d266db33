package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// UsageDBHandlerFunctions defines the interface for ProcessingUsage database operations.
type UsageDBHandlerFunctions interface {
	SelectUsage(tenantID uuid.UUID, day time.Time) (*model.ProcessingUsage, error)
	ReserveUsage(tenantID uuid.UUID, day time.Time, files int, bytes int64, maxFiles int, maxBytes int64) (*model.ProcessingUsage, error)
}

// UsageDBHandler handles processing-usage database operations
type UsageDBHandler struct {
	db *helper.Database
}

// NewUsageDBHandler creates a new processing-usage database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewUsageDBHandler(db *helper.Database, force bool) (*UsageDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	usageDbHandler := &UsageDBHandler{
		db: db,
	}

	err := loadSql.LoadUsageSql(usageDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load usage sql", err)
	}

	err = usageDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized UsageDBHandler")

	return usageDbHandler, nil
}

// CreateTable creates the 'processing_usage' table in the database.
// If the table already exists, it does not create it again.
func (h *UsageDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_usage();`)
	if err != nil {
		log.Panicf("error initializing processing_usage table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table processing_usage")

	return nil
}

// SelectUsage retrieves the usage counter of a tenant for the given day.
// A missing row reads as zero usage; prior days never carry over.
func (h *UsageDBHandler) SelectUsage(tenantID uuid.UUID, day time.Time) (*model.ProcessingUsage, error) {
	usage := &model.ProcessingUsage{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_usage($1, $2)`,
		tenantID,
		day.Format("2006-01-02"),
	)

	err := row.Scan(
		&usage.ID,
		&usage.TenantID,
		&usage.Day,
		&usage.FilesProcessed,
		&usage.BytesProcessed,
		&usage.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return usage, nil
}

// ReserveUsage atomically adds files and bytes to the tenant's counter for
// the given day and returns the updated totals. Concurrent reservations for
// the same tenant and day serialize on the upserted row. A reservation that
// would push the counters past maxFiles or maxBytes changes nothing and
// returns a nil usage.
func (h *UsageDBHandler) ReserveUsage(tenantID uuid.UUID, day time.Time, files int, bytes int64, maxFiles int, maxBytes int64) (*model.ProcessingUsage, error) {
	usage := &model.ProcessingUsage{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM reserve_usage($1, $2, $3, $4, $5, $6)`,
		tenantID,
		day.Format("2006-01-02"),
		files,
		bytes,
		maxFiles,
		maxBytes,
	)

	err := row.Scan(
		&usage.ID,
		&usage.TenantID,
		&usage.Day,
		&usage.FilesProcessed,
		&usage.BytesProcessed,
		&usage.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return usage, nil
}
