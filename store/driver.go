package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// ErrAlreadyReunited is returned when marking a report reunited that already
// carries the terminal reunited state. Repeat reunification must fail
// explicitly rather than silently succeed.
var ErrAlreadyReunited = errors.New("report already marked as reunited")

// ErrReportNotFound is returned when a report lookup by pet id finds nothing.
var ErrReportNotFound = errors.New("report not found")

// Driver is an interface for database access.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Report CRUD. CreateReport allocates the next pet id from the counter
	// atomically with the insert.
	CreateReport(ctx context.Context, create *Report) (*Report, error)
	ListReports(ctx context.Context, find *FindReport) ([]*Report, error)
	UpdateReport(ctx context.Context, update *UpdateReport) (*Report, error)
	DeleteReport(ctx context.Context, delete *DeleteReport) error

	// MarkReunited transitions a single report into the terminal reunited
	// state and bumps the reunited counter. Returns ErrAlreadyReunited on
	// repeat attempts.
	MarkReunited(ctx context.Context, petID int32) error

	// MarkPairReunited reunites both sides of a confirmed match in one
	// transaction: either both reports end up reunited or neither does.
	MarkPairReunited(ctx context.Context, petID1, petID2 int32) error

	GetReunitedCount(ctx context.Context) (int32, error)
	CountNewReports(ctx context.Context, sinceTs int64) (int32, error)

	// Fingerprint cache (optional matching-cost optimization).
	UpsertReportFingerprint(ctx context.Context, upsert *ReportFingerprint) (*ReportFingerprint, error)
	GetReportFingerprint(ctx context.Context, find *FindReportFingerprint) (*ReportFingerprint, error)
	DeleteReportFingerprint(ctx context.Context, petID int32) error
}
