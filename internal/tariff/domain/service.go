package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Resolve returns the tariff applied to sensors of the category.
	Resolve(ctx context.Context, categoryID snowflake.ID) (*Tariff, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, categoryID string) ([]Response, error)
	// Activate makes the tariff the only active one of its category.
	Activate(ctx context.Context, id string) (*Response, error)
}

type CreateRequest struct {
	CategoryID     string   `json:"category_id"`
	Name           string   `json:"name"`
	MinConsumption float64  `json:"min_consumption"`
	MaxConsumption *float64 `json:"max_consumption,omitempty"`
	WaterCharge    float64  `json:"water_charge"`
	SewerageCharge float64  `json:"sewerage_charge"`
	FixedCharge    float64  `json:"fixed_charge"`
	Active         bool     `json:"active"`
}

type Response struct {
	ID             string    `json:"id"`
	CategoryID     string    `json:"category_id"`
	Name           string    `json:"name"`
	MinConsumption float64   `json:"min_consumption"`
	MaxConsumption *float64  `json:"max_consumption,omitempty"`
	WaterCharge    float64   `json:"water_charge"`
	SewerageCharge float64   `json:"sewerage_charge"`
	FixedCharge    float64   `json:"fixed_charge"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrNoActiveTariff  = errors.New("no_active_tariff")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCharge   = errors.New("invalid_charge")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
