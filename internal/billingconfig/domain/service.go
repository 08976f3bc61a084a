package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*BillingConfig, error)
	List(ctx context.Context) ([]BillingConfig, error)
	GetByID(ctx context.Context, id string) (*BillingConfig, error)
	Update(ctx context.Context, req UpdateRequest) (*BillingConfig, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	Name             string   `json:"name"`
	Code             string   `json:"code"`
	Description      string   `json:"description"`
	IsActive         *bool    `json:"is_active"`
	BillingCycle     string   `json:"billing_cycle"`
	BillingDay       int      `json:"billing_day"`
	BillingHour      int      `json:"billing_hour"`
	BillingMinute    int      `json:"billing_minute"`
	Timezone         string   `json:"timezone"`
	IncludeWeekends  *bool    `json:"include_weekends"`
	TariffCategories []string `json:"tariff_categories"`
	SensorStatuses   []string `json:"sensor_statuses"`
	RetryOnFailure   bool     `json:"retry_on_failure"`
	MaxRetries       int      `json:"max_retries"`
	NotifyOnSuccess  bool     `json:"notify_on_success"`
	NotifyOnError    *bool    `json:"notify_on_error"`
	NotifyEmails     []string `json:"notify_emails"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	ID               string    `json:"id"`
	Name             *string   `json:"name,omitempty"`
	Description      *string   `json:"description,omitempty"`
	IsActive         *bool     `json:"is_active,omitempty"`
	BillingCycle     *string   `json:"billing_cycle,omitempty"`
	BillingDay       *int      `json:"billing_day,omitempty"`
	BillingHour      *int      `json:"billing_hour,omitempty"`
	BillingMinute    *int      `json:"billing_minute,omitempty"`
	Timezone         *string   `json:"timezone,omitempty"`
	IncludeWeekends  *bool     `json:"include_weekends,omitempty"`
	TariffCategories *[]string `json:"tariff_categories,omitempty"`
	SensorStatuses   *[]string `json:"sensor_statuses,omitempty"`
	RetryOnFailure   *bool     `json:"retry_on_failure,omitempty"`
	MaxRetries       *int      `json:"max_retries,omitempty"`
	NotifyOnSuccess  *bool     `json:"notify_on_success,omitempty"`
	NotifyOnError    *bool     `json:"notify_on_error,omitempty"`
	NotifyEmails     *[]string `json:"notify_emails,omitempty"`
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrCodeExists        = errors.New("code_already_exists")
	ErrInvalidCycle      = errors.New("invalid_billing_cycle")
	ErrInvalidDay        = errors.New("invalid_billing_day")
	ErrInvalidHour       = errors.New("invalid_billing_hour")
	ErrInvalidMinute     = errors.New("invalid_billing_minute")
	ErrInvalidTimezone   = errors.New("invalid_timezone")
	ErrInvalidCategory   = errors.New("invalid_tariff_category")
	ErrInvalidStatus     = errors.New("invalid_sensor_status")
	ErrInvalidMaxRetries = errors.New("invalid_max_retries")
	ErrInvalidEmail      = errors.New("invalid_notify_email")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
