package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"gorm.io/gorm"
)

const tariffColumns = `id, category_id, name, min_consumption, max_consumption, water_charge,
	sewerage_charge, fixed_charge, is_active, created_at, updated_at`

type repo struct{}

func Provide() tariffdomain.Repository {
	return &repo{}
}

func (r *repo) InsertCategory(ctx context.Context, db *gorm.DB, c *tariffdomain.TariffCategory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tariff_categories (id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.Description,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindCategoryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tariffdomain.TariffCategory, error) {
	var category tariffdomain.TariffCategory
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, created_at, updated_at
		 FROM tariff_categories WHERE id = ?`,
		id,
	).Scan(&category).Error
	if err != nil {
		return nil, err
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *tariffdomain.Tariff) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tariffs (`+tariffColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.CategoryID,
		t.Name,
		t.MinConsumption,
		t.MaxConsumption,
		t.WaterCharge,
		t.SewerageCharge,
		t.FixedCharge,
		t.IsActive,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tariffdomain.Tariff, error) {
	var tariff tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+` FROM tariffs WHERE id = ?`,
		id,
	).Scan(&tariff).Error
	if err != nil {
		return nil, err
	}
	if tariff.ID == 0 {
		return nil, nil
	}
	return &tariff, nil
}

// FindActiveByCategory prefers the newest row when legacy data has several active tariffs.
func (r *repo) FindActiveByCategory(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) (*tariffdomain.Tariff, error) {
	var tariff tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+`
		 FROM tariffs
		 WHERE category_id = ? AND is_active = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		categoryID,
		true,
	).Scan(&tariff).Error
	if err != nil {
		return nil, err
	}
	if tariff.ID == 0 {
		return nil, nil
	}
	return &tariff, nil
}

func (r *repo) ListByCategory(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) ([]tariffdomain.Tariff, error) {
	var tariffs []tariffdomain.Tariff
	err := db.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+` FROM tariffs WHERE category_id = ? ORDER BY created_at ASC, id ASC`,
		categoryID,
	).Scan(&tariffs).Error
	if err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (r *repo) DeactivateCategory(ctx context.Context, db *gorm.DB, categoryID, exceptID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tariffs SET is_active = ?, updated_at = ?
		 WHERE category_id = ? AND id <> ? AND is_active = ?`,
		false,
		at,
		categoryID,
		exceptID,
		true,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tariffs SET is_active = ?, updated_at = ? WHERE id = ?`,
		active,
		at,
		id,
	).Error
}
