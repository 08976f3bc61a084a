// Package recurrence computes when a billing configuration fires next. The
// scheduler arms timers with Next and the executor stores Next as next_run,
// so both always agree.
package recurrence

import (
	"errors"
	"time"

	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
)

var (
	ErrInvalidCycle    = errors.New("invalid_billing_cycle")
	ErrInvalidTimezone = errors.New("invalid_timezone")
)

// Cycle is one of Daily, Weekly, Monthly, Quarterly or Yearly.
type Cycle interface {
	// occurrence returns the n-th firing date relative to the period that
	// contains local. n == 0 is the current period.
	occurrence(local time.Time, n int) (year int, month time.Month, day int)
}

type Daily struct{}

// Weekly fires on Day (Sunday = 0).
type Weekly struct{ Day time.Weekday }

// Monthly fires on Day of every month, clamped to the month length.
type Monthly struct{ Day int }

// Quarterly fires on Day of January, April, July and October.
type Quarterly struct{ Day int }

// Yearly fires on Day of January.
type Yearly struct{ Day int }

type Schedule struct {
	Cycle           Cycle
	Hour            int
	Minute          int
	Location        *time.Location
	IncludeWeekends bool
}

func (Daily) occurrence(local time.Time, n int) (int, time.Month, int) {
	return local.Year(), local.Month(), local.Day() + n
}

func (w Weekly) occurrence(local time.Time, n int) (int, time.Month, int) {
	delta := (int(w.Day) - int(local.Weekday()) + 7) % 7
	return local.Year(), local.Month(), local.Day() + delta + 7*n
}

func (m Monthly) occurrence(local time.Time, n int) (int, time.Month, int) {
	return clampDay(local.Year(), local.Month()+time.Month(n), m.Day)
}

func (q Quarterly) occurrence(local time.Time, n int) (int, time.Month, int) {
	first := time.Month((int(local.Month())-1)/3*3 + 1)
	return clampDay(local.Year(), first+time.Month(3*n), q.Day)
}

func (y Yearly) occurrence(local time.Time, n int) (int, time.Month, int) {
	return clampDay(local.Year()+n, time.January, y.Day)
}

// Next returns the first firing strictly after now. With IncludeWeekends
// disabled a Saturday firing moves to Monday (+2 days) and a Sunday firing
// moves to Monday (+1 day).
func Next(s Schedule, now time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	cycle := s.Cycle
	if cycle == nil {
		cycle = Daily{}
	}
	local := now.In(loc)

	// Start two periods back: a shifted firing from an earlier period can
	// still be ahead of now.
	for n := -2; ; n++ {
		year, month, day := cycle.occurrence(local, n)
		at := time.Date(year, month, day, s.Hour, s.Minute, 0, 0, loc)
		if !s.IncludeWeekends {
			at = shiftWeekend(at)
		}
		if at.After(now) {
			return at
		}
	}
}

func shiftWeekend(at time.Time) time.Time {
	switch at.Weekday() {
	case time.Saturday:
		return time.Date(at.Year(), at.Month(), at.Day()+2, at.Hour(), at.Minute(), 0, 0, at.Location())
	case time.Sunday:
		return time.Date(at.Year(), at.Month(), at.Day()+1, at.Hour(), at.Minute(), 0, 0, at.Location())
	}
	return at
}

// clampDay normalizes year/month and caps day at the month length.
func clampDay(year int, month time.Month, day int) (int, time.Month, int) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day < 1 {
		day = 1
	}
	if day > last {
		day = last
	}
	return first.Year(), first.Month(), day
}

// FromConfig maps a stored configuration onto a Schedule.
func FromConfig(cfg billingconfigdomain.BillingConfig) (Schedule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		return Schedule{}, ErrInvalidTimezone
	}

	var cycle Cycle
	switch cfg.BillingCycle {
	case billingconfigdomain.CycleDaily:
		cycle = Daily{}
	case billingconfigdomain.CycleWeekly:
		cycle = Weekly{Day: time.Weekday(cfg.BillingDay % 7)}
	case billingconfigdomain.CycleMonthly:
		cycle = Monthly{Day: cfg.BillingDay}
	case billingconfigdomain.CycleQuarterly:
		cycle = Quarterly{Day: cfg.BillingDay}
	case billingconfigdomain.CycleYearly:
		cycle = Yearly{Day: cfg.BillingDay}
	default:
		return Schedule{}, ErrInvalidCycle
	}

	return Schedule{
		Cycle:           cycle,
		Hour:            cfg.BillingHour,
		Minute:          cfg.BillingMinute,
		Location:        loc,
		IncludeWeekends: cfg.IncludeWeekends,
	}, nil
}

// NextForConfig is FromConfig followed by Next.
func NextForConfig(cfg billingconfigdomain.BillingConfig, now time.Time) (time.Time, error) {
	schedule, err := FromConfig(cfg)
	if err != nil {
		return time.Time{}, err
	}
	return Next(schedule, now), nil
}
