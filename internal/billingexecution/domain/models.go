// Package domain contains the audit record of every billing run.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

type Trigger string

const (
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerManual    Trigger = "MANUAL"
)

type Execution struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	ConfigID       snowflake.ID   `json:"config_id" gorm:"not null;index"`
	Trigger        Trigger        `json:"trigger" gorm:"column:trigger_type;type:text;not null;default:'SCHEDULED'"`
	Status         Status         `json:"status" gorm:"type:text;not null"`
	CorrelationID  string         `json:"correlation_id" gorm:"type:text;not null;default:''"`
	StartedAt      time.Time      `json:"started_at" gorm:"not null"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	TotalSensors   int            `json:"total_sensors" gorm:"not null;default:0"`
	ProcessedCount int            `json:"processed_count" gorm:"not null;default:0"`
	SuccessCount   int            `json:"success_count" gorm:"not null;default:0"`
	FailedCount    int            `json:"failed_count" gorm:"not null;default:0"`
	Errors         datatypes.JSON `json:"errors" gorm:"type:jsonb;not null;default:'[]'"`
	Summary        datatypes.JSON `json:"summary" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Execution) TableName() string { return "billing_executions" }

// DeviceError is one failed sensor in a run.
type DeviceError struct {
	SensorID    string `json:"sensor_id"`
	MeterNumber string `json:"meter_number"`
	Error       string `json:"error"`
}

// Summary is the denormalized snapshot stored on a finished execution.
type Summary struct {
	ConfigCode      string  `json:"config_code"`
	InvoicesCreated int     `json:"invoices_created"`
	TotalAmount     float64 `json:"total_amount"`
	TotalM3         float64 `json:"total_m3"`
	ErrorsTruncated bool    `json:"errors_truncated,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	NextRun         string  `json:"next_run,omitempty"`
}

// Progress is the running tally persisted after each device.
type Progress struct {
	ProcessedCount int
	SuccessCount   int
	FailedCount    int
}

// ClassifyStatus maps final counts onto an execution status.
func ClassifyStatus(success, failed int) Status {
	switch {
	case success == 0:
		return StatusFailed
	case failed == 0:
		return StatusSuccess
	default:
		return StatusPartial
	}
}
