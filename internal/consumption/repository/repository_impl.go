package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	"gorm.io/gorm"
)

const recordColumns = `id, sensor_id, serial, reading_at, amount, previous_amount, consumption,
	invoiced, invoice_id, created_at`

type repo struct{}

func Provide() consumptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *consumptiondomain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO water_consumptions (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SensorID,
		record.Serial,
		record.ReadingAt.UTC(),
		record.Amount,
		record.PreviousAmount,
		record.Consumption,
		record.Invoiced,
		record.InvoiceID,
		record.CreatedAt.UTC(),
	).Error
}

func (r *repo) EarliestUninvoiced(ctx context.Context, db *gorm.DB, sensorID snowflake.ID) (*consumptiondomain.Record, error) {
	var record consumptiondomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM water_consumptions
		 WHERE sensor_id = ? AND invoiced = ?
		 ORDER BY reading_at ASC, id ASC
		 LIMIT 1`,
		sensorID,
		false,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListUninvoicedInWindow(ctx context.Context, db *gorm.DB, sensorID snowflake.ID, from, to time.Time) ([]consumptiondomain.Record, error) {
	var records []consumptiondomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM water_consumptions
		 WHERE sensor_id = ? AND invoiced = ? AND reading_at >= ? AND reading_at <= ?
		 ORDER BY reading_at ASC, id ASC`,
		sensorID,
		false,
		from.UTC(),
		to.UTC(),
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) LatestBefore(ctx context.Context, db *gorm.DB, sensorID snowflake.ID, before time.Time) (*consumptiondomain.Record, error) {
	var record consumptiondomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM water_consumptions
		 WHERE sensor_id = ? AND reading_at < ?
		 ORDER BY reading_at DESC, id DESC
		 LIMIT 1`,
		sensorID,
		before.UTC(),
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// MarkInvoiced claims the records for invoiceID. Every id must still be
// un-invoiced, otherwise nothing is considered claimed and the caller's
// transaction must roll back.
func (r *repo) MarkInvoiced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE water_consumptions
		 SET invoiced = ?, invoice_id = ?
		 WHERE id IN ? AND invoiced = ?`,
		true,
		invoiceID,
		ids,
		false,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return consumptiondomain.ErrAlreadyInvoiced
	}
	return nil
}
