package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// RunState is the bookkeeping written to a config after a run.
type RunState struct {
	LastRun       time.Time
	LastRunStatus RunStatus
	InvoicesAdded int
	NextRun       *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cfg *BillingConfig) error
	Update(ctx context.Context, db *gorm.DB, cfg *BillingConfig) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingConfig, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*BillingConfig, error)
	List(ctx context.Context, db *gorm.DB) ([]BillingConfig, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]BillingConfig, error)
	// UpdateRunState touches only the run bookkeeping columns.
	UpdateRunState(ctx context.Context, db *gorm.DB, id snowflake.ID, state RunState) error
	UpdateNextRun(ctx context.Context, db *gorm.DB, id snowflake.ID, nextRun time.Time) error
}
