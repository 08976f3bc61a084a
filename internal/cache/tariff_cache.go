package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
)

const defaultTariffTTL = 5 * time.Minute

// TariffCache stores the resolved active tariff per category for billing runs.
type TariffCache interface {
	GetActiveTariff(categoryID snowflake.ID) (*tariffdomain.Tariff, bool)
	SetActiveTariff(categoryID snowflake.ID, tariff *tariffdomain.Tariff)
	InvalidateCategory(categoryID snowflake.ID)
}

type tariffCache struct {
	tariffs Cache[snowflake.ID, tariffdomain.Tariff]
	ttl     time.Duration
}

// NewTariffCache returns an in-memory tariff cache with the default TTL.
func NewTariffCache() TariffCache {
	return NewTariffCacheWithTTL(defaultTariffTTL)
}

func NewTariffCacheWithTTL(ttl time.Duration) TariffCache {
	return &tariffCache{
		tariffs: NewTTLCache[snowflake.ID, tariffdomain.Tariff](),
		ttl:     ttl,
	}
}

// GetActiveTariff returns a copy so callers cannot mutate the cached row.
func (c *tariffCache) GetActiveTariff(categoryID snowflake.ID) (*tariffdomain.Tariff, bool) {
	t, ok := c.tariffs.Get(categoryID)
	if !ok {
		return nil, false
	}
	return &t, true
}

func (c *tariffCache) SetActiveTariff(categoryID snowflake.ID, tariff *tariffdomain.Tariff) {
	if tariff == nil || tariff.ID == 0 {
		return
	}
	c.tariffs.Set(categoryID, *tariff, c.ttl)
}

func (c *tariffCache) InvalidateCategory(categoryID snowflake.ID) {
	c.tariffs.Delete(categoryID)
}
