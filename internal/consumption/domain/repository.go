package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ErrAlreadyInvoiced is returned when a record selected for billing was
// claimed by another invoice in the meantime.
var ErrAlreadyInvoiced = errors.New("consumption_already_invoiced")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	// EarliestUninvoiced returns the oldest un-invoiced reading of the sensor.
	EarliestUninvoiced(ctx context.Context, db *gorm.DB, sensorID snowflake.ID) (*Record, error)
	// ListUninvoicedInWindow returns un-invoiced readings with from <= reading_at <= to,
	// ordered by reading time.
	ListUninvoicedInWindow(ctx context.Context, db *gorm.DB, sensorID snowflake.ID, from, to time.Time) ([]Record, error)
	LatestBefore(ctx context.Context, db *gorm.DB, sensorID snowflake.ID, before time.Time) (*Record, error)
	MarkInvoiced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error
}
