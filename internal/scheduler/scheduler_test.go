package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	billingconfigrepository "github.com/smallbiznis/tirta/internal/billingconfig/repository"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	execrepository "github.com/smallbiznis/tirta/internal/billingexecution/repository"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/executor"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Monday; a daily 06:00 UTC config next fires 18h later.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubExecutor struct {
	mu      sync.Mutex
	db      *gorm.DB
	clock   clock.Clock
	configs billingconfigdomain.Repository
	calls   []execdomain.Trigger
	status  execdomain.Status
	err     error
}

func (e *stubExecutor) Execute(ctx context.Context, configID snowflake.ID, trigger execdomain.Trigger) (*executor.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, trigger)
	status, err := e.status, e.err
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if status == "" {
		status = execdomain.StatusSuccess
	}
	if err := e.configs.UpdateRunState(ctx, e.db, configID, billingconfigdomain.RunState{
		LastRun:       e.clock.Now(),
		LastRunStatus: billingconfigdomain.RunStatus(status),
	}); err != nil {
		return nil, err
	}
	return &executor.Result{ExecutionID: snowflake.ID(1), ConfigID: configID, Status: status}, nil
}

func (e *stubExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *stubExecutor) set(status execdomain.Status, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status, e.err = status, err
}

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	sched    *Scheduler
	exec     *stubExecutor
	configs  billingconfigdomain.Repository
	execRepo execdomain.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	obsmetrics.ResetBillingMetricsForTest()

	db := dbtest.Open(t)
	fake := clock.NewFakeClock(testNow)
	configs := billingconfigrepository.Provide()
	execRepo := execrepository.Provide()
	stub := &stubExecutor{db: db, clock: fake, configs: configs}

	sched, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      fake,
		Configs:    configs,
		Executions: execRepo,
		Executor:   stub,
		Config:     DefaultConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	return &fixture{db: db, clock: fake, sched: sched, exec: stub, configs: configs, execRepo: execRepo}
}

func (f *fixture) addConfig(t *testing.T, id int64, code string, mutate ...func(*billingconfigdomain.BillingConfig)) *billingconfigdomain.BillingConfig {
	t.Helper()
	cfg := &billingconfigdomain.BillingConfig{
		ID:               snowflake.ID(id),
		Name:             code,
		Code:             code,
		IsActive:         true,
		BillingCycle:     billingconfigdomain.CycleDaily,
		BillingDay:       1,
		BillingHour:      6,
		Timezone:         "UTC",
		IncludeWeekends:  true,
		TariffCategories: billingconfigdomain.EncodeList([]string{}),
		SensorStatuses:   billingconfigdomain.EncodeList([]string{}),
		NotifyEmails:     billingconfigdomain.EncodeList([]string{}),
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, f.configs.Insert(context.Background(), f.db, cfg))
	return cfg
}

// advance moves the fake clock and waits for any fire it started.
func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.sched.inflight.Wait()
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 6, 0, 0, 0, time.UTC)
}

func TestInitArmsActiveConfigs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addConfig(t, 1, "daily")
	f.addConfig(t, 2, "paused", func(c *billingconfigdomain.BillingConfig) { c.IsActive = false })

	require.NoError(t, f.sched.Init(ctx))

	assert.Equal(t, 1, f.sched.Armed())
	assert.Equal(t, 1, f.clock.PendingTimers())
	next, ok := f.sched.NextFire(1)
	require.True(t, ok)
	assert.True(t, next.Equal(day(11)), "next fire %s", next)

	stored, err := f.configs.FindByID(ctx, f.db, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.NextRun)
	assert.True(t, stored.NextRun.Equal(day(11)))

	_, ok = f.sched.NextFire(2)
	assert.False(t, ok)
}

func TestFireExecutesAndRearms(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))

	f.advance(17 * time.Hour)
	assert.Equal(t, 0, f.exec.callCount())

	f.advance(time.Hour)
	require.Equal(t, 1, f.exec.callCount())
	assert.Equal(t, execdomain.TriggerScheduled, f.exec.calls[0])

	next, ok := f.sched.NextFire(1)
	require.True(t, ok)
	assert.True(t, next.Equal(day(12)), "next fire %s", next)
	assert.Equal(t, 1, f.clock.PendingTimers())
}

func TestFailedRunSkipsOneFireWhenRetryDisabled(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))
	f.exec.set(execdomain.StatusFailed, nil)

	f.advance(18 * time.Hour)
	require.Equal(t, 1, f.exec.callCount())

	f.advance(24 * time.Hour)
	assert.Equal(t, 1, f.exec.callCount())

	next, ok := f.sched.NextFire(1)
	require.True(t, ok)
	assert.True(t, next.Equal(day(13)), "skipped fire must still advance, got %s", next)

	// the following recurrence bills again
	f.advance(24 * time.Hour)
	assert.Equal(t, 2, f.exec.callCount())
}

func TestPersistentFailuresNeverStopBilling(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))
	f.exec.set(execdomain.StatusFailed, nil)

	f.advance(18 * time.Hour)
	for i := 0; i < 29; i++ {
		f.advance(24 * time.Hour)
	}

	// day 11 runs, then every failed run holds back exactly one recurrence
	assert.Equal(t, 15, f.exec.callCount())
	assert.Equal(t, 1, f.sched.Armed())
}

func TestReloadClearsFailureStreak(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(ctx))
	f.exec.set(execdomain.StatusFailed, nil)

	f.advance(18 * time.Hour)
	require.Equal(t, 1, f.exec.callCount())

	id := cfg.ID
	require.NoError(t, f.sched.Reload(ctx, &id))

	f.advance(24 * time.Hour)
	assert.Equal(t, 2, f.exec.callCount())
}

func TestFailedRunRetriesUpToMaxRetries(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily", func(c *billingconfigdomain.BillingConfig) {
		c.RetryOnFailure = true
		c.MaxRetries = 1
	})
	require.NoError(t, f.sched.Init(context.Background()))
	f.exec.set(execdomain.StatusFailed, nil)

	f.advance(18 * time.Hour)
	f.advance(24 * time.Hour)
	require.Equal(t, 2, f.exec.callCount())

	f.advance(24 * time.Hour)
	assert.Equal(t, 2, f.exec.callCount(), "retries exhausted")
	assert.Equal(t, 1, f.sched.Armed())

	f.advance(24 * time.Hour)
	assert.Equal(t, 3, f.exec.callCount())
}

func TestSuccessfulManualRunResetsFailureStreak(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(ctx))
	f.exec.set(execdomain.StatusFailed, nil)

	f.advance(18 * time.Hour)
	require.Equal(t, 1, f.exec.callCount())

	// an operator re-runs by hand and it succeeds
	require.NoError(t, f.configs.UpdateRunState(ctx, f.db, 1, billingconfigdomain.RunState{
		LastRun:       f.clock.Now(),
		LastRunStatus: billingconfigdomain.RunStatusSuccess,
	}))
	f.exec.set(execdomain.StatusSuccess, nil)

	f.advance(24 * time.Hour)
	assert.Equal(t, 2, f.exec.callCount())
}

func TestFireInProgressKeepsSchedule(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))
	f.exec.set("", executor.ErrExecutionInProgress)

	f.advance(18 * time.Hour)
	require.Equal(t, 1, f.exec.callCount())

	next, ok := f.sched.NextFire(1)
	require.True(t, ok)
	assert.True(t, next.Equal(day(12)))

	f.exec.set(execdomain.StatusSuccess, nil)
	f.advance(24 * time.Hour)
	assert.Equal(t, 2, f.exec.callCount())
}

func TestFireDisarmsDeactivatedConfig(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))

	require.NoError(t, f.db.Exec(`UPDATE billing_configs SET is_active = ? WHERE id = ?`, false, 1).Error)

	f.advance(18 * time.Hour)
	assert.Equal(t, 0, f.exec.callCount())
	assert.Equal(t, 0, f.sched.Armed())
	assert.Equal(t, 0, f.clock.PendingTimers())
}

func TestReloadRearmsChangedConfig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(ctx))

	cfg.BillingHour = 20
	require.NoError(t, f.configs.Update(ctx, f.db, cfg))
	id := cfg.ID
	require.NoError(t, f.sched.Reload(ctx, &id))

	next, ok := f.sched.NextFire(1)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)), "next fire %s", next)
	assert.Equal(t, 1, f.clock.PendingTimers())

	f.advance(8 * time.Hour)
	assert.Equal(t, 1, f.exec.callCount())
}

func TestReloadAllDisarmsRemovedConfigs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addConfig(t, 1, "keep")
	f.addConfig(t, 2, "drop")
	require.NoError(t, f.sched.Init(ctx))
	require.Equal(t, 2, f.sched.Armed())

	deleted, err := f.configs.Delete(ctx, f.db, 2)
	require.NoError(t, err)
	require.True(t, deleted)
	f.addConfig(t, 3, "new")

	require.NoError(t, f.sched.Reload(ctx, nil))

	assert.Equal(t, 2, f.sched.Armed())
	_, ok := f.sched.NextFire(2)
	assert.False(t, ok)
	_, ok = f.sched.NextFire(3)
	assert.True(t, ok)
	assert.Equal(t, 2, f.clock.PendingTimers())
}

func TestReloadDisarmsDeactivatedConfig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(ctx))

	cfg.IsActive = false
	require.NoError(t, f.configs.Update(ctx, f.db, cfg))
	id := cfg.ID
	require.NoError(t, f.sched.Reload(ctx, &id))

	assert.Equal(t, 0, f.sched.Armed())
	assert.Equal(t, 0, f.clock.PendingTimers())
}

func TestStopDisarmsEverything(t *testing.T) {
	f := setup(t)
	f.addConfig(t, 1, "daily")
	require.NoError(t, f.sched.Init(context.Background()))

	require.NoError(t, f.sched.Stop(context.Background()))
	assert.Equal(t, 0, f.sched.Armed())
	assert.Equal(t, 0, f.clock.PendingTimers())

	f.advance(48 * time.Hour)
	assert.Equal(t, 0, f.exec.callCount())
}

func TestInitFailsStaleExecutions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addConfig(t, 1, "daily")

	insert := func(id int64, startedAt time.Time) {
		require.NoError(t, f.execRepo.Insert(ctx, f.db, &execdomain.Execution{
			ID:        snowflake.ID(id),
			ConfigID:  1,
			Trigger:   execdomain.TriggerScheduled,
			Status:    execdomain.StatusRunning,
			StartedAt: startedAt,
			Errors:    []byte("[]"),
			Summary:   []byte("{}"),
			CreatedAt: startedAt,
			UpdatedAt: startedAt,
		}))
	}
	insert(10, testNow.Add(-2*time.Hour))
	insert(11, testNow.Add(-10*time.Minute))

	require.NoError(t, f.sched.Init(ctx))

	stale, err := f.execRepo.FindByID(ctx, f.db, 10)
	require.NoError(t, err)
	assert.Equal(t, execdomain.StatusFailed, stale.Status)
	require.NotNil(t, stale.CompletedAt)
	assert.Contains(t, string(stale.Errors), "execution abandoned")

	fresh, err := f.execRepo.FindByID(ctx, f.db, 11)
	require.NoError(t, err)
	assert.Equal(t, execdomain.StatusRunning, fresh.Status)
}

func TestSkipReason(t *testing.T) {
	cases := []struct {
		name     string
		retry    bool
		max      int
		failures int
		reason   string
		skip     bool
	}{
		{name: "no failures", failures: 0},
		{name: "retry disabled", failures: 1, reason: obsmetrics.SkipReasonRetryDisabled, skip: true},
		{name: "within budget", retry: true, max: 2, failures: 2},
		{name: "exhausted", retry: true, max: 2, failures: 3, reason: obsmetrics.SkipReasonRetryExhausted, skip: true},
		{name: "zero retries", retry: true, max: 0, failures: 1, reason: obsmetrics.SkipReasonRetryExhausted, skip: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &billingconfigdomain.BillingConfig{RetryOnFailure: tc.retry, MaxRetries: tc.max}
			reason, skip := skipReason(cfg, tc.failures)
			if skip != tc.skip || reason != tc.reason {
				t.Fatalf("skipReason(%d) = %q,%v want %q,%v", tc.failures, reason, skip, tc.reason, tc.skip)
			}
		})
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); err != ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
