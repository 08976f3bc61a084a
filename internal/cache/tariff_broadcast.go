package cache

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TariffInvalidationChannel carries category ids whose active tariff changed.
const TariffInvalidationChannel = "tirta:tariff:invalidate"

const publishTimeout = 2 * time.Second

type invalidationBus interface {
	Publish(ctx context.Context, categoryID snowflake.ID) error
}

type redisBus struct {
	client *redis.Client
}

func (b redisBus) Publish(ctx context.Context, categoryID snowflake.ID) error {
	return b.client.Publish(ctx, TariffInvalidationChannel, categoryID.String()).Err()
}

// broadcastTariffCache is a local TariffCache whose invalidations reach
// every replica subscribed to the same redis.
type broadcastTariffCache struct {
	local TariffCache
	bus   invalidationBus
	log   *zap.Logger
}

type SharedParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Redis     *redis.Client `optional:"true"`
	Log       *zap.Logger
}

// NewSharedTariffCache returns the in-memory cache alone when redis is not
// configured. Otherwise it subscribes to TariffInvalidationChannel for the
// lifetime of the app.
func NewSharedTariffCache(p SharedParams) TariffCache {
	local := NewTariffCache()
	if p.Redis == nil {
		return local
	}

	c := &broadcastTariffCache{
		local: local,
		bus:   redisBus{client: p.Redis},
		log:   p.Log.Named("cache.tariff"),
	}

	var sub *redis.PubSub
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sub = p.Redis.Subscribe(context.Background(), TariffInvalidationChannel)
			go func() {
				for msg := range sub.Channel() {
					c.apply(msg.Payload)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if sub == nil {
				return nil
			}
			return sub.Close()
		},
	})
	return c
}

func (c *broadcastTariffCache) GetActiveTariff(categoryID snowflake.ID) (*tariffdomain.Tariff, bool) {
	return c.local.GetActiveTariff(categoryID)
}

func (c *broadcastTariffCache) SetActiveTariff(categoryID snowflake.ID, tariff *tariffdomain.Tariff) {
	c.local.SetActiveTariff(categoryID, tariff)
}

// InvalidateCategory drops the local entry and tells the other replicas. A
// failed publish leaves them on the TTL.
func (c *broadcastTariffCache) InvalidateCategory(categoryID snowflake.ID) {
	c.local.InvalidateCategory(categoryID)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.bus.Publish(ctx, categoryID); err != nil {
		c.log.Warn("cache.tariff.publish_failed",
			zap.String("category_id", categoryID.String()),
			zap.Error(err),
		)
	}
}

func (c *broadcastTariffCache) apply(payload string) {
	categoryID, err := snowflake.ParseString(payload)
	if err != nil {
		c.log.Warn("cache.tariff.bad_message", zap.String("payload", payload))
		return
	}
	c.local.InvalidateCategory(categoryID)
}
