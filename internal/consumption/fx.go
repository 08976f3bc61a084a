package consumption

import (
	"github.com/smallbiznis/tirta/internal/consumption/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("consumption.repository",
	fx.Provide(repository.Provide),
)
