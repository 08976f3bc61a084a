package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sensor *Sensor) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Sensor, error)
	// ListEligible returns sensors whose status is in statuses and, when
	// categoryIDs is non-empty, whose tariff category is in categoryIDs.
	ListEligible(ctx context.Context, db *gorm.DB, statuses []string, categoryIDs []snowflake.ID) ([]Sensor, error)
}
