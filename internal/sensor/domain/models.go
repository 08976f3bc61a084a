package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StatusActive is the default eligibility filter for billing runs.
const StatusActive = "ACTIVE"

// Sensor is a water meter installed at a customer site. Rows are owned by the
// provisioning system; billing only reads them.
type Sensor struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Serial           string       `json:"serial" gorm:"type:text;not null;uniqueIndex"`
	CustomerID       snowflake.ID `json:"customer_id" gorm:"not null;index"`
	TariffCategoryID snowflake.ID `json:"tariff_category_id" gorm:"not null;index"`
	Status           string       `json:"status" gorm:"type:text;not null;default:'ACTIVE'"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Sensor) TableName() string { return "sensors" }
