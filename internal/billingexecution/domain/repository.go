package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ConfigID snowflake.ID
	Cursor   *Cursor
	Limit    int
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	ID        snowflake.ID
	StartedAt time.Time
}

// Final is written once when a run ends.
type Final struct {
	Status      Status
	CompletedAt time.Time
	Progress    Progress
	Errors      []byte
	Summary     []byte
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, exec *Execution) error
	SetTotalSensors(ctx context.Context, db *gorm.DB, id snowflake.ID, total int) error
	UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, progress Progress) error
	Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, final Final) error
	// FailStale closes RUNNING executions started before startedBefore, left
	// behind by a process that died mid-run.
	FailStale(ctx context.Context, db *gorm.DB, startedBefore, at time.Time, errorsJSON []byte) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Execution, error)
	// ListByConfig returns up to filter.Limit+1 rows, newest first.
	ListByConfig(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Execution, error)
}
