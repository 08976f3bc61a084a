// Package guard keeps two executions of the same billing config from
// overlapping, within a process and, when redis is configured, across
// processes.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var ErrExecutionInProgress = errors.New("execution_in_progress")

const keyExecutionLock = "execution:config:"

// Locker is the distributed half of the guard.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Guard struct {
	mu      sync.Mutex
	running map[snowflake.ID]struct{}
	locker  Locker
	ttl     time.Duration
	log     *zap.Logger
}

// New builds a guard. locker may be nil; ttl bounds how long a crashed holder
// can block other instances.
func New(locker Locker, ttl time.Duration, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		running: make(map[snowflake.ID]struct{}),
		locker:  locker,
		ttl:     ttl,
		log:     log,
	}
}

// Acquire claims configID or returns ErrExecutionInProgress. The returned
// release func must be called exactly once.
func (g *Guard) Acquire(ctx context.Context, configID snowflake.ID) (func(), error) {
	g.mu.Lock()
	if _, busy := g.running[configID]; busy {
		g.mu.Unlock()
		return nil, ErrExecutionInProgress
	}
	g.running[configID] = struct{}{}
	g.mu.Unlock()

	releaseLocal := func() {
		g.mu.Lock()
		delete(g.running, configID)
		g.mu.Unlock()
	}

	if g.locker == nil {
		return releaseLocal, nil
	}

	key := keyExecutionLock + configID.String()
	token, ok, err := g.locker.TryLock(ctx, key, g.ttl)
	if err != nil {
		releaseLocal()
		return nil, err
	}
	if !ok {
		releaseLocal()
		return nil, ErrExecutionInProgress
	}

	return func() {
		// The caller's context may already be done when the run ends.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.locker.Release(releaseCtx, key, token); err != nil {
			g.log.Warn("execution.lock.release_failed", zap.String("config_id", configID.String()), zap.Error(err))
		}
		releaseLocal()
	}, nil
}
