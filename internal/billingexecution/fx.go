package billingexecution

import (
	"github.com/smallbiznis/tirta/internal/billingexecution/repository"
	"github.com/smallbiznis/tirta/internal/billingexecution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingexecution.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
