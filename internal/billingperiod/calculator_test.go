package billingperiod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	consumptionrepository "github.com/smallbiznis/tirta/internal/consumption/repository"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/tirta/internal/invoice/repository"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func setupCalculator(t *testing.T) (*Calculator, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	return NewCalculator(Params{
		DB:           db,
		Invoices:     invoicerepository.Provide(),
		Consumptions: consumptionrepository.Provide(),
	}), db
}

func insertReading(t *testing.T, db *gorm.DB, id int64, sensorID snowflake.ID, at time.Time, invoiced bool) {
	t.Helper()
	err := consumptionrepository.Provide().Insert(context.Background(), db, &consumptiondomain.Record{
		ID:          snowflake.ID(id),
		SensorID:    sensorID,
		Serial:      "M-001",
		ReadingAt:   at,
		Amount:      float64(id) * 100,
		Consumption: 100,
		Invoiced:    invoiced,
		CreatedAt:   at,
	})
	require.NoError(t, err)
}

func insertInvoice(t *testing.T, db *gorm.DB, sensorID snowflake.ID, start, end time.Time) {
	t.Helper()
	err := invoicerepository.Provide().Insert(context.Background(), db, &invoicedomain.Invoice{
		ID:          500,
		Number:      "FAC-000001",
		CustomerID:  1,
		SensorID:    sensorID,
		TariffID:    1,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		Status:      invoicedomain.InvoiceStatusPending,
		DueDate:     end.UTC(),
		Metadata:    datatypes.JSON("{}"),
		CreatedAt:   end.UTC(),
		UpdatedAt:   end.UTC(),
	})
	require.NoError(t, err)
}

func monthlyConfig(tz string) billingconfigdomain.BillingConfig {
	return billingconfigdomain.BillingConfig{BillingCycle: billingconfigdomain.CycleMonthly, Timezone: tz}
}

func TestComputeContinuesAfterLastInvoice(t *testing.T) {
	calc, db := setupCalculator(t)
	lima := mustLoc(t, "America/Lima")
	sensor := sensordomain.Sensor{ID: 1, Serial: "M-001"}

	insertInvoice(t, db, sensor.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, lima),
		time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), lima),
	)
	// Feb 29 23:00 in Lima is already March 1st in UTC and must still be billed.
	insertReading(t, db, 1, sensor.ID, time.Date(2024, 2, 1, 2, 0, 0, 0, lima), false)
	insertReading(t, db, 2, sensor.ID, time.Date(2024, 2, 29, 23, 0, 0, 0, lima), false)
	insertReading(t, db, 3, sensor.ID, time.Date(2024, 3, 1, 0, 30, 0, 0, lima), false)

	period, err := calc.Compute(context.Background(), sensor, monthlyConfig("America/Lima"), time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, period.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, lima)), "start %s", period.Start)
	assert.True(t, period.End.Equal(time.Date(2024, 2, 29, 23, 59, 59, int(999*time.Millisecond), lima)), "end %s", period.End)
	assert.True(t, period.From().Equal(time.Date(2024, 2, 1, 5, 0, 0, 0, time.UTC)))
	require.Len(t, period.Records, 2)
	assert.Equal(t, snowflake.ID(1), period.Records[0].ID)
	assert.Equal(t, snowflake.ID(2), period.Records[1].ID)
}

func TestComputeStartsAtEarliestReading(t *testing.T) {
	calc, db := setupCalculator(t)
	sensor := sensordomain.Sensor{ID: 2}

	insertReading(t, db, 10, sensor.ID, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), true)
	insertReading(t, db, 11, sensor.ID, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), false)
	insertReading(t, db, 12, sensor.ID, time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC), false)

	period, err := calc.Compute(context.Background(), sensor, monthlyConfig("UTC"), time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, period.Start.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.Len(t, period.Records, 2)
}

func TestComputeWithoutBillableData(t *testing.T) {
	calc, db := setupCalculator(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)

	_, err := calc.Compute(ctx, sensordomain.Sensor{ID: 3}, monthlyConfig("UTC"), now)
	if !errors.Is(err, ErrNoBillableData) {
		t.Fatalf("expected ErrNoBillableData, got %v", err)
	}

	// Only readings after the last completed cycle.
	insertReading(t, db, 20, 4, time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC), false)
	_, err = calc.Compute(ctx, sensordomain.Sensor{ID: 4}, monthlyConfig("UTC"), now)
	require.ErrorIs(t, err, ErrNoBillableData)

	// Invoiced through January; nothing new in February is complete yet.
	insertInvoice(t, db, 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC))
	_, err = calc.Compute(ctx, sensordomain.Sensor{ID: 5}, monthlyConfig("UTC"), now)
	require.ErrorIs(t, err, ErrNoBillableData)

	_, err = calc.Compute(ctx, sensordomain.Sensor{ID: 5}, monthlyConfig("Bad/Zone"), now)
	require.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestPeriodEnd(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	ms := int(999 * time.Millisecond)

	tests := []struct {
		cycle billingconfigdomain.Cycle
		want  time.Time
	}{
		{billingconfigdomain.CycleDaily, time.Date(2024, 5, 14, 23, 59, 59, ms, time.UTC)},
		{billingconfigdomain.CycleWeekly, time.Date(2024, 5, 8, 23, 59, 59, ms, time.UTC)},
		{billingconfigdomain.CycleMonthly, time.Date(2024, 4, 30, 23, 59, 59, ms, time.UTC)},
		{billingconfigdomain.CycleQuarterly, time.Date(2024, 3, 31, 23, 59, 59, ms, time.UTC)},
		{billingconfigdomain.CycleYearly, time.Date(2023, 12, 31, 23, 59, 59, ms, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.cycle), func(t *testing.T) {
			got := PeriodEnd(tt.cycle, now)
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}

	march := PeriodEnd(billingconfigdomain.CycleMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 29, march.Day())
	january := PeriodEnd(billingconfigdomain.CycleQuarterly, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, ms, time.UTC), january)
}

func TestPeriodWindowFollowsDaylightSaving(t *testing.T) {
	newYork := mustLoc(t, "America/New_York")
	ms := int(999 * time.Millisecond)

	summer := Period{End: PeriodEnd(billingconfigdomain.CycleMonthly, time.Date(2024, 7, 15, 9, 0, 0, 0, newYork))}
	assert.Equal(t, time.Date(2024, 7, 1, 3, 59, 59, ms, time.UTC), summer.To())

	winter := Period{End: PeriodEnd(billingconfigdomain.CycleMonthly, time.Date(2024, 1, 15, 9, 0, 0, 0, newYork))}
	assert.Equal(t, time.Date(2024, 1, 1, 4, 59, 59, ms, time.UTC), winter.To())

	start := Period{Start: StartOfDay(time.Date(2024, 3, 10, 12, 0, 0, 0, newYork))}
	assert.Equal(t, time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC), start.From())
}
