// Package domain contains billing configurations: named, independently
// scheduled billing policies.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Cycle is the recurrence period of a configuration.
type Cycle string

const (
	CycleDaily     Cycle = "DAILY"
	CycleWeekly    Cycle = "WEEKLY"
	CycleMonthly   Cycle = "MONTHLY"
	CycleQuarterly Cycle = "QUARTERLY"
	CycleYearly    Cycle = "YEARLY"
)

func (c Cycle) Valid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// RunStatus is the outcome recorded on the config after a run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

type BillingConfig struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Code        string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Description string       `json:"description" gorm:"type:text;not null;default:''"`
	IsActive    bool         `json:"is_active" gorm:"not null;default:true"`

	BillingCycle    Cycle  `json:"billing_cycle" gorm:"type:text;not null"`
	BillingDay      int    `json:"billing_day" gorm:"not null;default:1"`
	BillingHour     int    `json:"billing_hour" gorm:"not null;default:0"`
	BillingMinute   int    `json:"billing_minute" gorm:"not null;default:0"`
	Timezone        string `json:"timezone" gorm:"type:text;not null"`
	IncludeWeekends bool   `json:"include_weekends" gorm:"not null;default:true"`

	TariffCategories datatypes.JSON `json:"tariff_categories" gorm:"type:jsonb;not null;default:'[]'"`
	SensorStatuses   datatypes.JSON `json:"sensor_statuses" gorm:"type:jsonb;not null;default:'[]'"`

	RetryOnFailure bool `json:"retry_on_failure" gorm:"not null;default:false"`
	MaxRetries     int  `json:"max_retries" gorm:"not null;default:0"`

	NotifyOnSuccess bool           `json:"notify_on_success" gorm:"not null;default:false"`
	NotifyOnError   bool           `json:"notify_on_error" gorm:"not null;default:true"`
	NotifyEmails    datatypes.JSON `json:"notify_emails" gorm:"type:jsonb;not null;default:'[]'"`

	NextRun       *time.Time `json:"next_run,omitempty"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastRunStatus *string    `json:"last_run_status,omitempty" gorm:"type:text"`
	TotalInvoices int64      `json:"total_invoices" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingConfig) TableName() string { return "billing_configs" }

// CategoryIDs decodes the tariff category filter. Malformed entries are
// ignored.
func (c BillingConfig) CategoryIDs() []snowflake.ID {
	var raw []json.RawMessage
	if err := json.Unmarshal(c.TariffCategories, &raw); err != nil {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, item := range raw {
		var id snowflake.ID
		if err := json.Unmarshal(item, &id); err != nil {
			var n int64
			if err := json.Unmarshal(item, &n); err != nil {
				continue
			}
			id = snowflake.ID(n)
		}
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Statuses decodes the sensor status filter. Empty means ACTIVE only.
func (c BillingConfig) Statuses() []string {
	return decodeStrings(c.SensorStatuses)
}

func (c BillingConfig) Emails() []string {
	return decodeStrings(c.NotifyEmails)
}

// LastFailed reports whether the last recorded run failed.
func (c BillingConfig) LastFailed() bool {
	return c.LastRunStatus != nil && *c.LastRunStatus == string(RunStatusFailed)
}

func decodeStrings(data datatypes.JSON) []string {
	var values []string
	if len(data) == 0 || json.Unmarshal(data, &values) != nil {
		return nil
	}
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// EncodeList marshals a list column, always producing a JSON array.
func EncodeList[T any](values []T) datatypes.JSON {
	if values == nil {
		values = []T{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}
