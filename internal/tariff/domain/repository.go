package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertCategory(ctx context.Context, db *gorm.DB, category *TariffCategory) error
	FindCategoryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TariffCategory, error)
	Insert(ctx context.Context, db *gorm.DB, tariff *Tariff) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tariff, error)
	FindActiveByCategory(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) (*Tariff, error)
	ListByCategory(ctx context.Context, db *gorm.DB, categoryID snowflake.ID) ([]Tariff, error)
	DeactivateCategory(ctx context.Context, db *gorm.DB, categoryID, exceptID snowflake.ID, at time.Time) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, at time.Time) error
}
