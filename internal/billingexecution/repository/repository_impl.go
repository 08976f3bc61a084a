package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	executiondomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"gorm.io/gorm"
)

const executionColumns = `id, config_id, trigger_type, status, correlation_id, started_at,
	completed_at, total_sensors, processed_count, success_count, failed_count, errors,
	summary, created_at, updated_at`

type repo struct{}

func Provide() executiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, exec *executiondomain.Execution) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.ConfigID,
		exec.Trigger,
		exec.Status,
		exec.CorrelationID,
		exec.StartedAt.UTC(),
		exec.CompletedAt,
		exec.TotalSensors,
		exec.ProcessedCount,
		exec.SuccessCount,
		exec.FailedCount,
		exec.Errors,
		exec.Summary,
		exec.CreatedAt.UTC(),
		exec.UpdatedAt.UTC(),
	).Error
}

func (r *repo) SetTotalSensors(ctx context.Context, db *gorm.DB, id snowflake.ID, total int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_executions SET total_sensors = ?, updated_at = ? WHERE id = ?`,
		total,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, progress executiondomain.Progress) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_executions
		 SET processed_count = ?, success_count = ?, failed_count = ?, updated_at = ?
		 WHERE id = ?`,
		progress.ProcessedCount,
		progress.SuccessCount,
		progress.FailedCount,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, final executiondomain.Final) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_executions
		 SET status = ?, completed_at = ?, processed_count = ?, success_count = ?,
		     failed_count = ?, errors = ?, summary = ?, updated_at = ?
		 WHERE id = ?`,
		final.Status,
		final.CompletedAt.UTC(),
		final.Progress.ProcessedCount,
		final.Progress.SuccessCount,
		final.Progress.FailedCount,
		string(final.Errors),
		string(final.Summary),
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) FailStale(ctx context.Context, db *gorm.DB, startedBefore, at time.Time, errorsJSON []byte) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE billing_executions
		 SET status = ?, completed_at = ?, errors = ?, updated_at = ?
		 WHERE status = ? AND started_at < ?`,
		executiondomain.StatusFailed,
		at.UTC(),
		string(errorsJSON),
		at.UTC(),
		executiondomain.StatusRunning,
		startedBefore.UTC(),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*executiondomain.Execution, error) {
	var exec executiondomain.Execution
	err := db.WithContext(ctx).Raw(
		`SELECT `+executionColumns+` FROM billing_executions WHERE id = ?`,
		id,
	).Scan(&exec).Error
	if err != nil {
		return nil, err
	}
	if exec.ID == 0 {
		return nil, nil
	}
	return &exec, nil
}

func (r *repo) ListByConfig(ctx context.Context, db *gorm.DB, filter executiondomain.ListFilter) ([]*executiondomain.Execution, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + executionColumns + ` FROM billing_executions WHERE config_id = ?`)
	args := []any{filter.ConfigID}

	if filter.Cursor != nil {
		query.WriteString(` AND (started_at < ? OR (started_at = ? AND id < ?))`)
		startedAt := filter.Cursor.StartedAt.UTC()
		args = append(args, startedAt, startedAt, filter.Cursor.ID)
	}

	query.WriteString(` ORDER BY started_at DESC, id DESC LIMIT ?`)
	args = append(args, filter.Limit+1)

	var items []*executiondomain.Execution
	if err := db.WithContext(ctx).Raw(query.String(), args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
