package executor

import (
	"github.com/smallbiznis/tirta/internal/config"
	"github.com/smallbiznis/tirta/internal/executor/guard"
	"github.com/smallbiznis/tirta/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.executor",
	fx.Provide(newGuard),
	fx.Provide(New),
)

type guardParams struct {
	fx.In

	Locker *ratelimit.Locker          `optional:"true"`
	Engine *config.EngineConfigHolder `optional:"true"`
	Log    *zap.Logger
}

func newGuard(p guardParams) *guard.Guard {
	// A nil *Locker must not become a non-nil interface.
	var locker guard.Locker
	if p.Locker != nil {
		locker = p.Locker
	}
	return guard.New(locker, p.Engine.Get().ExecutionTimeout, p.Log.Named("executor.guard"))
}
