package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	"github.com/smallbiznis/tirta/pkg/db"
	"gorm.io/gorm"
)

const invoiceColumns = `id, number, customer_id, sensor_id, tariff_id, config_id, execution_id,
	period_start, period_end, consumption_m3, water_charge, sewerage_charge, fixed_charge,
	taxes, additional_charges, discounts, total_amount, amount_due, status, due_date,
	metadata, created_at, updated_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, inv *invoicedomain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.Number,
		inv.CustomerID,
		inv.SensorID,
		inv.TariffID,
		inv.ConfigID,
		inv.ExecutionID,
		inv.PeriodStart,
		inv.PeriodEnd,
		inv.ConsumptionM3,
		inv.WaterCharge,
		inv.SewerageCharge,
		inv.FixedCharge,
		inv.Taxes,
		inv.AdditionalCharges,
		inv.Discounts,
		inv.TotalAmount,
		inv.AmountDue,
		inv.Status,
		inv.DueDate,
		inv.Metadata,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`,
		id,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) FindLastBySensor(ctx context.Context, conn *gorm.DB, sensorID snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE sensor_id = ?
		 ORDER BY period_end DESC, id DESC
		 LIMIT 1`,
		sensorID,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) ListByExecution(ctx context.Context, conn *gorm.DB, executionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE execution_id = ? ORDER BY number ASC`,
		executionID,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// EnsureSequence creates the counter row when missing. A concurrent creator
// winning the race is not an error.
func (r *repo) EnsureSequence(ctx context.Context, conn *gorm.DB, name string) error {
	var count int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoice_sequences WHERE name = ?`,
		name,
	).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO invoice_sequences (name, last_value) VALUES (?, ?)`,
		name,
		0,
	).Error
	if err != nil && !db.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}

func (r *repo) NextSequence(ctx context.Context, conn *gorm.DB, name string) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE invoice_sequences SET last_value = last_value + 1 WHERE name = ?`,
		name,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, invoicedomain.ErrSequenceMissing
	}

	var value int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT last_value FROM invoice_sequences WHERE name = ?`,
		name,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}
