// Package billingperiod derives the consumption window one invoice covers.
package billingperiod

import (
	"context"
	"errors"
	"time"

	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("billingperiod",
	fx.Provide(NewCalculator),
)

var (
	ErrNoBillableData  = errors.New("no_billable_data")
	ErrInvalidTimezone = errors.New("invalid_timezone")
)

// Period is an inclusive [Start, End] window in the config timezone together
// with the un-invoiced readings that fall inside it.
type Period struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
	Records  []consumptiondomain.Record
}

// From and To are the window bounds as stored (UTC).
func (p Period) From() time.Time { return p.Start.UTC() }
func (p Period) To() time.Time   { return p.End.UTC() }

type Params struct {
	fx.In

	DB           *gorm.DB
	Invoices     invoicedomain.Repository
	Consumptions consumptiondomain.Repository
}

type Calculator struct {
	db           *gorm.DB
	invoices     invoicedomain.Repository
	consumptions consumptiondomain.Repository
}

func NewCalculator(p Params) *Calculator {
	return &Calculator{
		db:           p.DB,
		invoices:     p.Invoices,
		consumptions: p.Consumptions,
	}
}

// Compute returns the next billable period for the sensor. It starts the day
// after the last invoiced period, or at the oldest un-invoiced reading for a
// sensor that was never billed, and ends with the last completed cycle.
func (c *Calculator) Compute(ctx context.Context, sensor sensordomain.Sensor, cfg billingconfigdomain.BillingConfig, now time.Time) (*Period, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		return nil, ErrInvalidTimezone
	}

	var start time.Time
	last, err := c.invoices.FindLastBySensor(ctx, c.db, sensor.ID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		start = StartOfDay(last.PeriodEnd.In(loc)).AddDate(0, 0, 1)
	} else {
		earliest, err := c.consumptions.EarliestUninvoiced(ctx, c.db, sensor.ID)
		if err != nil {
			return nil, err
		}
		if earliest == nil {
			return nil, ErrNoBillableData
		}
		start = earliest.ReadingAt.In(loc)
	}

	end := PeriodEnd(cfg.BillingCycle, now.In(loc))
	if start.After(end) {
		return nil, ErrNoBillableData
	}

	period := &Period{Start: start, End: end, Location: loc}
	records, err := c.consumptions.ListUninvoicedInWindow(ctx, c.db, sensor.ID, period.From(), period.To())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoBillableData
	}
	period.Records = records
	return period, nil
}

// PeriodEnd is the last instant of the most recent completed cycle before
// local, in local's location.
func PeriodEnd(cycle billingconfigdomain.Cycle, local time.Time) time.Time {
	y, m, d := local.Date()
	loc := local.Location()

	switch cycle {
	case billingconfigdomain.CycleDaily:
		return EndOfDay(time.Date(y, m, d-1, 12, 0, 0, 0, loc))
	case billingconfigdomain.CycleWeekly:
		return EndOfDay(time.Date(y, m, d-7, 12, 0, 0, 0, loc))
	case billingconfigdomain.CycleQuarterly:
		quarterStart := time.Month((int(m)-1)/3*3 + 1)
		return EndOfDay(time.Date(y, quarterStart, 0, 12, 0, 0, 0, loc))
	case billingconfigdomain.CycleYearly:
		return EndOfDay(time.Date(y-1, time.December, 31, 12, 0, 0, 0, loc))
	default:
		return EndOfDay(time.Date(y, m, 0, 12, 0, 0, 0, loc))
	}
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is 23:59:59.999 on t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
