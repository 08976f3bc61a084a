package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"

	obscontext "github.com/smallbiznis/tirta/internal/observability/context"
	obslogger "github.com/smallbiznis/tirta/internal/observability/logger"
	"go.uber.org/zap"
)

// fireContext builds the detached context a fire runs under. Fires outlive
// the timer callback so they never inherit a request context.
func (s *Scheduler) fireContext(entry *armedTimer) (context.Context, *zap.Logger) {
	ctx := obscontext.WithActor(context.Background(), "system", "scheduler")
	ctx = obscontext.WithConfigID(ctx, entry.configID.String())
	log := s.logger(ctx).With(zap.String("config_code", entry.code))
	return ctx, log
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// recoverFire keeps a panicking execution from taking the process down.
// The config stays disarmed until the next Reload.
func (s *Scheduler) recoverFire(log *zap.Logger) {
	if r := recover(); r != nil {
		log.Error("scheduler.fire.panic",
			zap.String("panic", fmt.Sprint(r)),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
