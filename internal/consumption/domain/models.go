// Package domain contains water consumption readings as reported by meters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Record is one meter reading. Amount is the absolute register value in
// liters and Consumption the delta against the previous reading.
type Record struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	SensorID       snowflake.ID  `json:"sensor_id" gorm:"not null;index:idx_consumptions_sensor_reading,priority:1"`
	Serial         string        `json:"serial" gorm:"type:text;not null"`
	ReadingAt      time.Time     `json:"reading_at" gorm:"not null;index:idx_consumptions_sensor_reading,priority:2"`
	Amount         float64       `json:"amount" gorm:"type:numeric(14,3);not null"`
	PreviousAmount *float64      `json:"previous_amount,omitempty" gorm:"type:numeric(14,3)"`
	Consumption    float64       `json:"consumption" gorm:"type:numeric(14,3);not null;default:0"`
	Invoiced       bool          `json:"invoiced" gorm:"not null;default:false"`
	InvoiceID      *snowflake.ID `json:"invoice_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "water_consumptions" }
