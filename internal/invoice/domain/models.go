// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// SequenceInvoice is the invoice_sequences row backing invoice numbers.
const SequenceInvoice = "invoice"

// Invoice is the billing output for one sensor and one period.
type Invoice struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Number            string         `json:"number" gorm:"type:text;not null;uniqueIndex"`
	CustomerID        snowflake.ID   `json:"customer_id" gorm:"not null;index"`
	SensorID          snowflake.ID   `json:"sensor_id" gorm:"not null;uniqueIndex:uq_invoices_sensor_period,priority:1"`
	TariffID          snowflake.ID   `json:"tariff_id" gorm:"not null"`
	ConfigID          snowflake.ID   `json:"config_id" gorm:"index"`
	ExecutionID       snowflake.ID   `json:"execution_id" gorm:"index"`
	PeriodStart       time.Time      `json:"period_start" gorm:"not null;uniqueIndex:uq_invoices_sensor_period,priority:2"`
	PeriodEnd         time.Time      `json:"period_end" gorm:"not null"`
	ConsumptionM3     float64        `json:"consumption_m3" gorm:"column:consumption_m3;type:numeric(14,3);not null"`
	WaterCharge       float64        `json:"water_charge" gorm:"type:numeric(12,2);not null"`
	SewerageCharge    float64        `json:"sewerage_charge" gorm:"type:numeric(12,2);not null"`
	FixedCharge       float64        `json:"fixed_charge" gorm:"type:numeric(12,2);not null"`
	Taxes             float64        `json:"taxes" gorm:"type:numeric(12,2);not null;default:0"`
	AdditionalCharges float64        `json:"additional_charges" gorm:"type:numeric(12,2);not null;default:0"`
	Discounts         float64        `json:"discounts" gorm:"type:numeric(12,2);not null;default:0"`
	TotalAmount       float64        `json:"total_amount" gorm:"type:numeric(12,2);not null"`
	AmountDue         float64        `json:"amount_due" gorm:"type:numeric(12,2);not null"`
	Status            InvoiceStatus  `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	DueDate           time.Time      `json:"due_date" gorm:"not null"`
	Metadata          datatypes.JSON `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Metadata is the meter snapshot stored with each invoice.
type Metadata struct {
	PreviousReading   float64 `json:"previous_reading"`
	CurrentReading    float64 `json:"current_reading"`
	ConsumptionLiters float64 `json:"consumption_liters"`
	RecordCount       int     `json:"record_count"`
	TariffName        string  `json:"tariff_name,omitempty"`
}
