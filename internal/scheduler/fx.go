package scheduler

import (
	"context"

	"github.com/smallbiznis/tirta/internal/executor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Provide(func(svc *executor.Service) Executor { return svc }),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Enabled {
		log.Info("scheduler disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Init(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
