package scheduler

import (
	"context"
	"encoding/json"

	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"go.uber.org/zap"
)

const staleExecutionError = "execution abandoned: process stopped before completion"

// RecoverStaleExecutions fails RUNNING executions that started more than
// RecoveryThreshold ago. Only a crashed process leaves those behind.
func (s *Scheduler) RecoverStaleExecutions(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.RecoveryThreshold)

	payload, err := json.Marshal([]execdomain.DeviceError{{Error: staleExecutionError}})
	if err != nil {
		return 0, err
	}

	recovered, err := s.executions.FailStale(ctx, s.db, cutoff, now, payload)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		s.log.Warn("scheduler.recovery.failed_stale",
			zap.Int64("count", recovered),
			zap.Time("started_before", cutoff),
		)
	}
	return recovered, nil
}
