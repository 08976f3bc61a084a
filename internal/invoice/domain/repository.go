package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// FindLastBySensor returns the invoice with the latest period_end for the sensor.
	FindLastBySensor(ctx context.Context, db *gorm.DB, sensorID snowflake.ID) (*Invoice, error)
	ListByExecution(ctx context.Context, db *gorm.DB, executionID snowflake.ID) ([]Invoice, error)
	EnsureSequence(ctx context.Context, db *gorm.DB, name string) error
	// NextSequence increments and returns the counter; callers run it inside
	// the transaction that consumes the value.
	NextSequence(ctx context.Context, db *gorm.DB, name string) (int64, error)
}
