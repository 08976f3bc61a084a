package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	"gorm.io/gorm"
)

const configColumns = `id, name, code, description, is_active, billing_cycle, billing_day,
	billing_hour, billing_minute, timezone, include_weekends, tariff_categories,
	sensor_statuses, retry_on_failure, max_retries, notify_on_success, notify_on_error,
	notify_emails, next_run, last_run, last_run_status, total_invoices, created_at, updated_at`

type repo struct{}

func Provide() billingconfigdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cfg *billingconfigdomain.BillingConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_configs (`+configColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID,
		cfg.Name,
		cfg.Code,
		cfg.Description,
		cfg.IsActive,
		cfg.BillingCycle,
		cfg.BillingDay,
		cfg.BillingHour,
		cfg.BillingMinute,
		cfg.Timezone,
		cfg.IncludeWeekends,
		cfg.TariffCategories,
		cfg.SensorStatuses,
		cfg.RetryOnFailure,
		cfg.MaxRetries,
		cfg.NotifyOnSuccess,
		cfg.NotifyOnError,
		cfg.NotifyEmails,
		cfg.NextRun,
		cfg.LastRun,
		cfg.LastRunStatus,
		cfg.TotalInvoices,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Error
}

// Update rewrites the operator-editable columns and next_run. Run
// bookkeeping is left to UpdateRunState.
func (r *repo) Update(ctx context.Context, db *gorm.DB, cfg *billingconfigdomain.BillingConfig) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_configs
		 SET name = ?, description = ?, is_active = ?, billing_cycle = ?, billing_day = ?,
		     billing_hour = ?, billing_minute = ?, timezone = ?, include_weekends = ?,
		     tariff_categories = ?, sensor_statuses = ?, retry_on_failure = ?, max_retries = ?,
		     notify_on_success = ?, notify_on_error = ?, notify_emails = ?, next_run = ?,
		     updated_at = ?
		 WHERE id = ?`,
		cfg.Name,
		cfg.Description,
		cfg.IsActive,
		cfg.BillingCycle,
		cfg.BillingDay,
		cfg.BillingHour,
		cfg.BillingMinute,
		cfg.Timezone,
		cfg.IncludeWeekends,
		cfg.TariffCategories,
		cfg.SensorStatuses,
		cfg.RetryOnFailure,
		cfg.MaxRetries,
		cfg.NotifyOnSuccess,
		cfg.NotifyOnError,
		cfg.NotifyEmails,
		cfg.NextRun,
		cfg.UpdatedAt,
		cfg.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM billing_configs WHERE id = ?`, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*billingconfigdomain.BillingConfig, error) {
	var cfg billingconfigdomain.BillingConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+` FROM billing_configs WHERE id = ?`,
		id,
	).Scan(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*billingconfigdomain.BillingConfig, error) {
	var cfg billingconfigdomain.BillingConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+` FROM billing_configs WHERE code = ?`,
		code,
	).Scan(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]billingconfigdomain.BillingConfig, error) {
	var items []billingconfigdomain.BillingConfig
	err := db.WithContext(ctx).Raw(
		`SELECT ` + configColumns + ` FROM billing_configs ORDER BY created_at ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]billingconfigdomain.BillingConfig, error) {
	var items []billingconfigdomain.BillingConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+configColumns+` FROM billing_configs WHERE is_active = ? ORDER BY id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateRunState(ctx context.Context, db *gorm.DB, id snowflake.ID, state billingconfigdomain.RunState) error {
	var nextRun any
	if state.NextRun != nil {
		nextRun = state.NextRun.UTC()
	}
	return db.WithContext(ctx).Exec(
		`UPDATE billing_configs
		 SET last_run = ?, last_run_status = ?, total_invoices = total_invoices + ?,
		     next_run = COALESCE(?, next_run), updated_at = ?
		 WHERE id = ?`,
		state.LastRun.UTC(),
		string(state.LastRunStatus),
		state.InvoicesAdded,
		nextRun,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateNextRun(ctx context.Context, db *gorm.DB, id snowflake.ID, nextRun time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_configs SET next_run = ?, updated_at = ? WHERE id = ?`,
		nextRun.UTC(),
		time.Now().UTC(),
		id,
	).Error
}
