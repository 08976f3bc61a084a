// Package scheduler arms one timer per active billing config and runs the
// executor when it fires.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/executor"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"github.com/smallbiznis/tirta/internal/recurrence"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Executor is the part of the billing executor a fire needs.
type Executor interface {
	Execute(ctx context.Context, configID snowflake.ID, trigger execdomain.Trigger) (*executor.Result, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Configs    billingconfigdomain.Repository
	Executions execdomain.Repository
	Executor   Executor
	Config     Config `optional:"true"`
}

// armedTimer is one pending fire. failures counts consecutive failed
// scheduled runs since the timer was (re)armed by Init or Reload or since
// the last skipped fire.
type armedTimer struct {
	configID snowflake.ID
	code     string
	at       time.Time
	timer    clock.Timer
	failures int
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	configs    billingconfigdomain.Repository
	executions execdomain.Repository
	executor   Executor
	metrics    *obsmetrics.BillingMetrics

	mu       sync.Mutex
	timers   map[snowflake.ID]*armedTimer
	stopped  bool
	inflight sync.WaitGroup
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Configs == nil || p.Executions == nil || p.Executor == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		configs:    p.Configs,
		executions: p.Executions,
		executor:   p.Executor,
		metrics:    obsmetrics.Billing(),
		timers:     make(map[snowflake.ID]*armedTimer),
	}, nil
}

// Init recovers executions orphaned by a previous process and arms a timer
// for every active config. Missed occurrences are not replayed.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	if _, err := s.RecoverStaleExecutions(ctx); err != nil {
		s.log.Warn("scheduler.recovery.failed", zap.Error(err))
	}

	configs, err := s.configs.ListActive(ctx, s.db)
	if err != nil {
		return err
	}
	for i := range configs {
		s.arm(ctx, &configs[i], 0)
	}
	s.log.Info("scheduler.initialized", zap.Int("armed", s.Armed()))
	return nil
}

// Reload re-derives the timer of one config, or of every config when
// configID is nil. Inactive or deleted configs are disarmed. Running
// executions are left alone.
func (s *Scheduler) Reload(ctx context.Context, configID *snowflake.ID) error {
	if configID == nil {
		return s.resync(ctx)
	}

	cfg, err := s.configs.FindByID(ctx, s.db, *configID)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.IsActive {
		s.disarm(*configID)
		return nil
	}
	s.arm(ctx, cfg, 0)
	return nil
}

func (s *Scheduler) resync(ctx context.Context) error {
	configs, err := s.configs.ListActive(ctx, s.db)
	if err != nil {
		return err
	}

	active := make(map[snowflake.ID]struct{}, len(configs))
	for i := range configs {
		active[configs[i].ID] = struct{}{}
		s.arm(ctx, &configs[i], 0)
	}

	s.mu.Lock()
	var stale []snowflake.ID
	for id := range s.timers {
		if _, ok := active[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.disarm(id)
	}
	return nil
}

// Stop disarms every timer and waits for fires that already started, up to
// ctx. In-flight executions keep running to completion.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.metrics.SetArmedSchedules(0)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler.stop.timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Armed reports how many configs currently have a pending timer.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// NextFire returns the planned fire time of a config, if armed.
func (s *Scheduler) NextFire(configID snowflake.ID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[configID]
	if !ok {
		return time.Time{}, false
	}
	return entry.at, true
}

// arm schedules the next occurrence after now and mirrors it to next_run.
func (s *Scheduler) arm(ctx context.Context, cfg *billingconfigdomain.BillingConfig, failures int) {
	s.armAfter(ctx, cfg, s.clock.Now(), failures, nil)
}

// armAfter replaces the config's timer. When prev is set the timer is only
// installed if prev is still the current entry, so a Reload that happened
// during a fire wins.
func (s *Scheduler) armAfter(ctx context.Context, cfg *billingconfigdomain.BillingConfig, after time.Time, failures int, prev *armedTimer) {
	next, err := recurrence.NextForConfig(*cfg, after)
	if err != nil {
		s.log.Error("scheduler.arm.failed",
			zap.String("config_id", cfg.ID.String()),
			zap.String("config_code", cfg.Code),
			zap.Error(err),
		)
		s.disarm(cfg.ID)
		return
	}

	entry := &armedTimer{
		configID: cfg.ID,
		code:     cfg.Code,
		at:       next,
		failures: failures,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	current := s.timers[cfg.ID]
	if prev != nil && current != prev {
		s.mu.Unlock()
		return
	}
	if current != nil {
		current.timer.Stop()
	}
	delay := next.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	entry.timer = s.clock.AfterFunc(delay, func() { s.fire(entry) })
	s.timers[cfg.ID] = entry
	armed := len(s.timers)
	s.mu.Unlock()

	s.metrics.SetArmedSchedules(armed)

	if cfg.NextRun == nil || !cfg.NextRun.Equal(next) {
		if err := s.configs.UpdateNextRun(ctx, s.db, cfg.ID, next); err != nil {
			s.log.Warn("scheduler.next_run.persist_failed",
				zap.String("config_id", cfg.ID.String()),
				zap.Error(err),
			)
		}
	}
	s.log.Debug("scheduler.armed",
		zap.String("config_id", cfg.ID.String()),
		zap.String("config_code", cfg.Code),
		zap.Time("next_run", next),
		zap.Int("failures", failures),
	)
}

func (s *Scheduler) disarm(configID snowflake.ID) {
	s.mu.Lock()
	entry, ok := s.timers[configID]
	if ok {
		entry.timer.Stop()
		delete(s.timers, configID)
	}
	armed := len(s.timers)
	s.mu.Unlock()

	if ok {
		s.metrics.SetArmedSchedules(armed)
		s.log.Info("scheduler.disarmed", zap.String("config_id", configID.String()))
	}
}

// fire runs on the timer goroutine and hands the work off.
func (s *Scheduler) fire(entry *armedTimer) {
	s.mu.Lock()
	if s.stopped || s.timers[entry.configID] != entry {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		s.runFire(entry)
	}()
}

func (s *Scheduler) runFire(entry *armedTimer) {
	ctx, log := s.fireContext(entry)
	defer s.recoverFire(log)

	started := s.clock.Now()
	s.metrics.ObserveFireLag(started.Sub(entry.at))

	// Occurrences are computed from the planned instant so an early wake-up
	// cannot arm the same occurrence twice.
	after := started
	if after.Before(entry.at) {
		after = entry.at
	}

	cfg, err := s.configs.FindByID(ctx, s.db, entry.configID)
	if err != nil {
		log.Error("scheduler.fire.load_failed", zap.Error(err))
		s.retryLater(ctx, entry, after)
		return
	}
	if cfg == nil || !cfg.IsActive {
		s.metrics.IncFireSkipped(obsmetrics.SkipReasonInactive)
		log.Info("scheduler.fire.skipped", zap.String("reason", obsmetrics.SkipReasonInactive))
		s.disarmIfCurrent(entry)
		return
	}

	failures := entry.failures
	if !cfg.LastFailed() {
		// a successful run, manual ones included, clears the streak
		failures = 0
	}

	if reason, skip := skipReason(cfg, failures); skip {
		s.metrics.IncFireSkipped(reason)
		log.Warn("scheduler.fire.skipped",
			zap.String("reason", reason),
			zap.Int("consecutive_failures", failures),
			zap.Int("max_retries", cfg.MaxRetries),
		)
		// Only one recurrence is held back. The next one bills again.
		s.armAfter(ctx, cfg, after, 0, entry)
		return
	}

	log.Info("scheduler.fire.started", zap.Time("planned_at", entry.at))
	result, err := s.executor.Execute(ctx, cfg.ID, execdomain.TriggerScheduled)
	switch {
	case errors.Is(err, executor.ErrExecutionInProgress):
		s.metrics.IncFireSkipped(obsmetrics.SkipReasonInProgress)
		log.Warn("scheduler.fire.skipped", zap.String("reason", obsmetrics.SkipReasonInProgress))
	case errors.Is(err, executor.ErrInvalidConfig):
		s.metrics.IncFireSkipped(obsmetrics.SkipReasonInactive)
		log.Info("scheduler.fire.skipped", zap.String("reason", obsmetrics.SkipReasonInactive))
		s.disarmIfCurrent(entry)
		return
	case err != nil:
		failures++
		log.Error("scheduler.fire.failed", zap.Error(err), zap.Int("consecutive_failures", failures))
	case result.Status == execdomain.StatusFailed:
		failures++
		log.Warn("scheduler.fire.finished",
			zap.String("execution_id", result.ExecutionID.String()),
			zap.String("status", string(result.Status)),
			zap.Int("consecutive_failures", failures),
		)
	default:
		failures = 0
		log.Info("scheduler.fire.finished",
			zap.String("execution_id", result.ExecutionID.String()),
			zap.String("status", string(result.Status)),
		)
	}

	// pick up run bookkeeping written by the executor
	if fresh, err := s.configs.FindByID(ctx, s.db, cfg.ID); err == nil && fresh != nil {
		cfg = fresh
	}
	s.armAfter(ctx, cfg, after, failures, entry)
}

// skipReason applies the retry policy to a natural recurrence that follows
// failures consecutive failed runs.
func skipReason(cfg *billingconfigdomain.BillingConfig, failures int) (string, bool) {
	if failures == 0 {
		return "", false
	}
	if !cfg.RetryOnFailure {
		return obsmetrics.SkipReasonRetryDisabled, true
	}
	if failures > cfg.MaxRetries {
		return obsmetrics.SkipReasonRetryExhausted, true
	}
	return "", false
}

// retryLater keeps the schedule alive when the config could not be read.
func (s *Scheduler) retryLater(ctx context.Context, entry *armedTimer, after time.Time) {
	cfg, err := s.configs.FindByID(ctx, s.db, entry.configID)
	if err != nil || cfg == nil {
		// The next Reload re-arms it.
		s.disarmIfCurrent(entry)
		return
	}
	s.armAfter(ctx, cfg, after, entry.failures, entry)
}

func (s *Scheduler) disarmIfCurrent(entry *armedTimer) {
	s.mu.Lock()
	current, ok := s.timers[entry.configID]
	if !ok || current != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, entry.configID)
	armed := len(s.timers)
	s.mu.Unlock()
	s.metrics.SetArmedSchedules(armed)
}
