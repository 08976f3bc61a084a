package sensor

import (
	"github.com/smallbiznis/tirta/internal/sensor/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("sensor.repository",
	fx.Provide(repository.Provide),
)
