package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() sensordomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sensor *sensordomain.Sensor) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sensors (id, serial, customer_id, tariff_category_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sensor.ID,
		sensor.Serial,
		sensor.CustomerID,
		sensor.TariffCategoryID,
		sensor.Status,
		sensor.CreatedAt,
		sensor.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sensordomain.Sensor, error) {
	var sensor sensordomain.Sensor
	err := db.WithContext(ctx).Raw(
		`SELECT id, serial, customer_id, tariff_category_id, status, created_at, updated_at
		 FROM sensors WHERE id = ?`,
		id,
	).Scan(&sensor).Error
	if err != nil {
		return nil, err
	}
	if sensor.ID == 0 {
		return nil, nil
	}
	return &sensor, nil
}

func (r *repo) ListEligible(ctx context.Context, db *gorm.DB, statuses []string, categoryIDs []snowflake.ID) ([]sensordomain.Sensor, error) {
	if len(statuses) == 0 {
		statuses = []string{sensordomain.StatusActive}
	}

	query := strings.Builder{}
	query.WriteString(`SELECT id, serial, customer_id, tariff_category_id, status, created_at, updated_at
		 FROM sensors WHERE status IN ?`)
	args := []any{statuses}
	if len(categoryIDs) > 0 {
		query.WriteString(` AND tariff_category_id IN ?`)
		args = append(args, categoryIDs)
	}
	query.WriteString(` ORDER BY id ASC`)

	var sensors []sensordomain.Sensor
	if err := db.WithContext(ctx).Raw(query.String(), args...).Scan(&sensors).Error; err != nil {
		return nil, err
	}
	return sensors, nil
}
