package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	err      error
}

func (m *memoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	if m.held == nil {
		m.held = map[string]string{}
	}
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	m.held[key] = "token-" + key
	return m.held[key], true, nil
}

func (m *memoryLocker) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.released = append(m.released, key)
	return nil
}

func TestAcquireSerializesSameConfig(t *testing.T) {
	g := New(nil, time.Minute, nil)

	release, err := g.Acquire(context.Background(), 1)
	require.NoError(t, err)

	_, err = g.Acquire(context.Background(), 1)
	require.ErrorIs(t, err, ErrExecutionInProgress)

	other, err := g.Acquire(context.Background(), 2)
	require.NoError(t, err)
	other()

	release()
	again, err := g.Acquire(context.Background(), 1)
	require.NoError(t, err)
	again()
}

func TestAcquireHonoursDistributedLock(t *testing.T) {
	locker := &memoryLocker{held: map[string]string{"execution:config:5": "someone-else"}}
	g := New(locker, time.Minute, nil)

	_, err := g.Acquire(context.Background(), 5)
	require.ErrorIs(t, err, ErrExecutionInProgress)

	// The local claim must not leak when the remote lock is refused.
	delete(locker.held, "execution:config:5")
	release, err := g.Acquire(context.Background(), 5)
	require.NoError(t, err)
	release()
	require.Equal(t, []string{"execution:config:5"}, locker.released)
	require.Empty(t, locker.held)
}

func TestAcquireLockError(t *testing.T) {
	g := New(&memoryLocker{err: errors.New("redis down")}, time.Minute, nil)

	_, err := g.Acquire(context.Background(), 9)
	require.EqualError(t, err, "redis down")

	g.locker = nil
	release, err := g.Acquire(context.Background(), 9)
	require.NoError(t, err)
	release()
}
