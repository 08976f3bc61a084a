package tariff

import (
	"github.com/smallbiznis/tirta/internal/cache"
	"github.com/smallbiznis/tirta/internal/tariff/repository"
	"github.com/smallbiznis/tirta/internal/tariff/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tariff.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewSharedTariffCache),
	fx.Provide(service.New),
)
