package clock

import (
	"sort"
	"sync"
	"time"
)

type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due, in
// deadline order. Callbacks run synchronously on the caller's goroutine.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.nextDueLocked(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.fired = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.fn()
	}
}

// PendingTimers reports how many timers are armed and not yet fired.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	pending := make([]*fakeTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(target) {
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].at.Before(pending[j].at) })
	return pending[0]
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
