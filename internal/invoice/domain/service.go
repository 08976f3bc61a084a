package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// EnsureSequence creates the numbering counter when missing. Call it
	// before opening device transactions.
	EnsureSequence(ctx context.Context) error
	// CreateInTx numbers and stores an invoice using the caller's transaction.
	CreateInTx(ctx context.Context, tx *gorm.DB, draft Draft) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	ListByExecution(ctx context.Context, executionID string) ([]Invoice, error)
}

// Draft carries everything an invoice needs except its id and number.
type Draft struct {
	CustomerID        snowflake.ID
	SensorID          snowflake.ID
	TariffID          snowflake.ID
	ConfigID          snowflake.ID
	ExecutionID       snowflake.ID
	PeriodStart       time.Time
	PeriodEnd         time.Time
	ConsumptionM3     float64
	WaterCharge       float64
	SewerageCharge    float64
	FixedCharge       float64
	Taxes             float64
	AdditionalCharges float64
	Discounts         float64
	TotalAmount       float64
	IssuedAt          time.Time
	Metadata          Metadata
}

var (
	ErrInvoiceExists   = errors.New("invoice_exists")
	ErrSequenceMissing = errors.New("invoice_sequence_missing")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
