package billingconfig

import (
	"github.com/smallbiznis/tirta/internal/billingconfig/repository"
	"github.com/smallbiznis/tirta/internal/billingconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingconfig.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
