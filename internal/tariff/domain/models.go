package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TariffCategory groups sensors that share a rate table.
type TariffCategory struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TariffCategory) TableName() string { return "tariff_categories" }

// Tariff is a rate row: per-m³ water and sewerage charges plus a fixed charge.
type Tariff struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	CategoryID     snowflake.ID `json:"category_id" gorm:"column:category_id;not null;index"`
	Name           string       `json:"name" gorm:"type:text;not null"`
	MinConsumption float64      `json:"min_consumption" gorm:"type:numeric(14,3);not null;default:0"`
	MaxConsumption *float64     `json:"max_consumption,omitempty" gorm:"type:numeric(14,3)"`
	WaterCharge    float64      `json:"water_charge" gorm:"type:numeric(12,4);not null"`
	SewerageCharge float64      `json:"sewerage_charge" gorm:"type:numeric(12,4);not null"`
	FixedCharge    float64      `json:"fixed_charge" gorm:"type:numeric(12,2);not null"`
	IsActive       bool         `json:"is_active" gorm:"not null;default:false"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Tariff) TableName() string { return "tariffs" }
