package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	billingconfigrepository "github.com/smallbiznis/tirta/internal/billingconfig/repository"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	execrepository "github.com/smallbiznis/tirta/internal/billingexecution/repository"
	"github.com/smallbiznis/tirta/internal/billingperiod"
	"github.com/smallbiznis/tirta/internal/charge"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/config"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	consumptionrepository "github.com/smallbiznis/tirta/internal/consumption/repository"
	"github.com/smallbiznis/tirta/internal/events"
	"github.com/smallbiznis/tirta/internal/executor/guard"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/tirta/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/tirta/internal/invoice/service"
	"github.com/smallbiznis/tirta/internal/notification"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	sensorrepository "github.com/smallbiznis/tirta/internal/sensor/repository"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	tariffrepository "github.com/smallbiznis/tirta/internal/tariff/repository"
	tariffservice "github.com/smallbiznis/tirta/internal/tariff/service"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) countType(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type sentSummary struct {
	emails  []string
	summary notification.Summary
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentSummary
}

func (n *recordingNotifier) Send(_ context.Context, emails []string, summary notification.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, sentSummary{emails: emails, summary: summary})
}

func (n *recordingNotifier) Wait() {}

type failingSensors struct {
	sensordomain.Repository
	err error
}

func (f failingSensors) ListEligible(context.Context, *gorm.DB, []string, []snowflake.ID) ([]sensordomain.Sensor, error) {
	return nil, f.err
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	guard     *guard.Guard
	publisher *recordingPublisher
	notifier  *recordingNotifier
	configs   billingconfigdomain.Repository
	invoices  invoicedomain.Repository
}

func setup(t *testing.T, opts ...func(*Params)) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	node := dbtest.MustNode(t)
	log := zap.NewNop()
	engine := config.NewStaticEngineConfigHolder(config.DefaultEngineConfig())
	invoiceRepo := invoicerepository.Provide()
	consumptionRepo := consumptionrepository.Provide()
	g := guard.New(nil, time.Minute, log)
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}

	p := Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clock.NewFakeClock(testNow),
		Engine:       engine,
		Configs:      billingconfigrepository.Provide(),
		Executions:   execrepository.Provide(),
		Sensors:      sensorrepository.Provide(),
		Consumptions: consumptionRepo,
		Tariffs: tariffservice.New(tariffservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
			Repo:  tariffrepository.Provide(),
		}),
		Invoices: invoiceservice.NewService(invoiceservice.ServiceParam{
			DB:     db,
			Log:    log,
			GenID:  node,
			Repo:   invoiceRepo,
			Engine: engine,
		}),
		Periods: billingperiod.NewCalculator(billingperiod.Params{
			DB:           db,
			Invoices:     invoiceRepo,
			Consumptions: consumptionRepo,
		}),
		Guard:    g,
		Notifier: notifier,
		Events:   publisher,
	}
	for _, opt := range opts {
		opt(&p)
	}

	return &fixture{
		db:        db,
		svc:       New(p),
		guard:     g,
		publisher: publisher,
		notifier:  notifier,
		configs:   p.Configs,
		invoices:  invoiceRepo,
	}
}

func (f *fixture) addConfig(t *testing.T, id int64, code string, categories []string, mutate ...func(*billingconfigdomain.BillingConfig)) *billingconfigdomain.BillingConfig {
	t.Helper()
	cfg := &billingconfigdomain.BillingConfig{
		ID:               snowflake.ID(id),
		Name:             code,
		Code:             code,
		IsActive:         true,
		BillingCycle:     billingconfigdomain.CycleMonthly,
		BillingDay:       1,
		BillingHour:      6,
		Timezone:         "America/Lima",
		IncludeWeekends:  true,
		TariffCategories: billingconfigdomain.EncodeList(categories),
		SensorStatuses:   billingconfigdomain.EncodeList([]string{}),
		NotifyOnError:    true,
		NotifyEmails:     billingconfigdomain.EncodeList([]string{"ops@example.com"}),
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, f.configs.Insert(context.Background(), f.db, cfg))
	return cfg
}

func (f *fixture) addTariff(t *testing.T, id, categoryID int64) {
	t.Helper()
	require.NoError(t, tariffrepository.Provide().Insert(context.Background(), f.db, &tariffdomain.Tariff{
		ID:             snowflake.ID(id),
		CategoryID:     snowflake.ID(categoryID),
		Name:           "Domestic",
		WaterCharge:    1.50,
		SewerageCharge: 0.45,
		FixedCharge:    8.50,
		IsActive:       true,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}))
}

func (f *fixture) addSensor(t *testing.T, id, categoryID int64, serial string) {
	t.Helper()
	require.NoError(t, sensorrepository.Provide().Insert(context.Background(), f.db, &sensordomain.Sensor{
		ID:               snowflake.ID(id),
		Serial:           serial,
		CustomerID:       snowflake.ID(id + 1000),
		TariffCategoryID: snowflake.ID(categoryID),
		Status:           sensordomain.StatusActive,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}))
}

func (f *fixture) addReading(t *testing.T, id, sensorID int64, at time.Time, amount, consumption float64, previous *float64, invoiced bool) {
	t.Helper()
	require.NoError(t, consumptionrepository.Provide().Insert(context.Background(), f.db, &consumptiondomain.Record{
		ID:             snowflake.ID(id),
		SensorID:       snowflake.ID(sensorID),
		Serial:         "serial",
		ReadingAt:      at,
		Amount:         amount,
		PreviousAmount: previous,
		Consumption:    consumption,
		Invoiced:       invoiced,
		CreatedAt:      at,
	}))
}

func (f *fixture) countRows(t *testing.T, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(query, args...).Scan(&n).Error)
	return n
}

func feb(day int) time.Time {
	return time.Date(2025, 2, day, 15, 0, 0, 0, time.UTC)
}

func TestExecuteBillsEligibleSensors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "lima-norte", nil)
	f.addTariff(t, 50, 10)
	f.addSensor(t, 100, 10, "M-100")
	f.addSensor(t, 200, 10, "M-200")

	// sensor 100 derives its previous reading from an older, already billed record
	f.addReading(t, 1, 100, time.Date(2025, 1, 20, 15, 0, 0, 0, time.UTC), 1000, 500, nil, true)
	f.addReading(t, 2, 100, feb(5), 13750, 12750, nil, false)
	f.addReading(t, 3, 100, feb(20), 26500, 12750, nil, false)
	prev := 4000.0
	f.addReading(t, 4, 200, feb(7), 29500, 25500, &prev, false)

	res, err := f.svc.Execute(ctx, cfg.ID, execdomain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, execdomain.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.TotalSensors)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 0, res.FailedCount)
	assert.Empty(t, res.Errors)
	assert.InDelta(t, 116.4, res.TotalAmount, 0.0001)
	require.NotNil(t, res.NextRun)
	assert.True(t, res.NextRun.After(testNow))

	require.Len(t, res.Invoices, 2)
	byNumber := map[string]invoicedomain.Invoice{}
	for _, inv := range res.Invoices {
		byNumber[inv.Number] = inv
		assert.InDelta(t, 58.20, inv.TotalAmount, 0.0001)
		assert.InDelta(t, 38.25, inv.WaterCharge, 0.0001)
		assert.InDelta(t, 11.48, inv.SewerageCharge, 0.0001)
		assert.InDelta(t, charge.Total(inv.WaterCharge, inv.SewerageCharge, inv.FixedCharge, inv.Taxes, inv.AdditionalCharges, inv.Discounts), inv.TotalAmount, 0.0001)
		assert.Equal(t, inv.TotalAmount, inv.AmountDue)
		assert.Equal(t, res.ExecutionID, inv.ExecutionID)
	}
	assert.Contains(t, byNumber, "FAC-000001")
	assert.Contains(t, byNumber, "FAC-000002")

	var meta []struct {
		SensorID int64
		Metadata string
	}
	require.NoError(t, f.db.Raw(`SELECT sensor_id, metadata FROM invoices ORDER BY sensor_id`).Scan(&meta).Error)
	require.Len(t, meta, 2)
	assert.Contains(t, meta[0].Metadata, `"previous_reading":1000`)
	assert.Contains(t, meta[0].Metadata, `"current_reading":26500`)
	assert.Contains(t, meta[1].Metadata, `"previous_reading":4000`)

	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM water_consumptions WHERE invoiced = false`))
	assert.Equal(t, int64(3), f.countRows(t, `SELECT COUNT(*) FROM water_consumptions WHERE invoice_id IS NOT NULL`))

	exec, err := execrepository.Provide().FindByID(ctx, f.db, res.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, execdomain.StatusSuccess, exec.Status)
	assert.Equal(t, execdomain.TriggerManual, exec.Trigger)
	assert.Equal(t, 2, exec.ProcessedCount)
	assert.Equal(t, 2, exec.SuccessCount)
	require.NotNil(t, exec.CompletedAt)

	stored, err := f.configs.FindByID(ctx, f.db, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.TotalInvoices)
	require.NotNil(t, stored.LastRunStatus)
	assert.Equal(t, "SUCCESS", *stored.LastRunStatus)
	require.NotNil(t, stored.NextRun)

	assert.Equal(t, 2, f.publisher.countType(events.TypeInvoiceGenerated))
	assert.Equal(t, 1, f.publisher.countType(events.TypeExecutionFinished))
	// notify_on_success is off
	assert.Empty(t, f.notifier.sends)
}

func TestExecuteTwiceDoesNotDuplicateInvoices(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "lima-norte", nil)
	f.addTariff(t, 50, 10)
	f.addSensor(t, 100, 10, "M-100")
	f.addReading(t, 1, 100, feb(5), 25500, 25500, nil, false)

	first, err := f.svc.Execute(ctx, cfg.ID, execdomain.TriggerScheduled)
	require.NoError(t, err)
	require.Equal(t, execdomain.StatusSuccess, first.Status)

	second, err := f.svc.Execute(ctx, cfg.ID, execdomain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, execdomain.StatusFailed, second.Status)
	assert.Equal(t, 0, second.InvoicesCreated)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, billingperiod.ErrNoBillableData.Error(), second.Errors[0].Error)
	assert.Equal(t, "M-100", second.Errors[0].MeterNumber)

	assert.Equal(t, int64(1), f.countRows(t, `SELECT COUNT(*) FROM invoices`))
	stored, err := f.configs.FindByID(ctx, f.db, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TotalInvoices)
	assert.True(t, stored.LastFailed())
}

func TestExecuteClassifiesPartialRun(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cfg := f.addConfig(t, 1, "mixed", nil)
	f.addTariff(t, 50, 10)

	for i := int64(1); i <= 10; i++ {
		sensorID := 100 + i
		f.addSensor(t, sensorID, 10, "M-"+snowflake.ID(sensorID).String())
		consumption := 12000.0
		if i > 7 {
			consumption = 0
		}
		f.addReading(t, i, sensorID, feb(10), 50000, consumption, nil, false)
	}

	res, err := f.svc.Execute(ctx, cfg.ID, execdomain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, execdomain.StatusPartial, res.Status)
	assert.Equal(t, 10, res.TotalSensors)
	assert.Equal(t, 7, res.SuccessCount)
	assert.Equal(t, 3, res.FailedCount)
	require.Len(t, res.Errors, 3)
	for _, e := range res.Errors {
		assert.Equal(t, charge.ErrZeroConsumption.Error(), e.Error)
	}

	// zero-consumption readings stay available for the next run
	assert.Equal(t, int64(3), f.countRows(t, `SELECT COUNT(*) FROM water_consumptions WHERE invoiced = false`))
	assert.Equal(t, int64(7), f.countRows(t, `SELECT COUNT(*) FROM invoices`))

	require.Len(t, f.notifier.sends, 1)
	sent := f.notifier.sends[0]
	assert.Equal(t, []string{"ops@example.com"}, sent.emails)
	assert.Equal(t, "PARTIAL", sent.summary.Status)
	assert.Len(t, sent.summary.Errors, 3)
}

func TestExecuteOnlyTouchesConfiguredCategories(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	north := f.addConfig(t, 1, "north", []string{"10"})
	f.addConfig(t, 2, "south", []string{"20"})
	f.addTariff(t, 50, 10)
	f.addTariff(t, 60, 20)
	f.addSensor(t, 100, 10, "M-N")
	f.addSensor(t, 200, 20, "M-S")
	f.addReading(t, 1, 100, feb(5), 25500, 25500, nil, false)
	f.addReading(t, 2, 200, feb(5), 25500, 25500, nil, false)

	res, err := f.svc.Execute(ctx, north.ID, execdomain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSensors)
	assert.Equal(t, execdomain.StatusSuccess, res.Status)

	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM invoices WHERE sensor_id = ?`, 200))
	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM water_consumptions WHERE sensor_id = ? AND invoiced = true`, 200))
	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM billing_executions WHERE config_id = ?`, 2))
}

func TestExecuteRecordsMissingTariff(t *testing.T) {
	f := setup(t)
	cfg := f.addConfig(t, 1, "no-tariff", nil)
	f.addSensor(t, 100, 99, "M-100")
	f.addReading(t, 1, 100, feb(5), 25500, 25500, nil, false)

	res, err := f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, execdomain.StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, tariffdomain.ErrNoActiveTariff.Error(), res.Errors[0].Error)
}

func TestExecuteRejectsUnknownOrInactiveConfig(t *testing.T) {
	f := setup(t)
	inactive := f.addConfig(t, 1, "paused", nil, func(c *billingconfigdomain.BillingConfig) {
		c.IsActive = false
	})

	_, err := f.svc.Execute(context.Background(), inactive.ID, execdomain.TriggerManual)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = f.svc.Execute(context.Background(), snowflake.ID(404), execdomain.TriggerManual)
	require.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM billing_executions`))
}

func TestExecuteRejectsOverlappingRun(t *testing.T) {
	f := setup(t)
	cfg := f.addConfig(t, 1, "busy", nil)

	release, err := f.guard.Acquire(context.Background(), cfg.ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerManual)
	require.ErrorIs(t, err, ErrExecutionInProgress)
	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM billing_executions`))

	release()
	res, err := f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalSensors)
}

func TestExecuteRunLevelErrorFinalizesFailed(t *testing.T) {
	boom := errors.New("sensor store unavailable")
	f := setup(t, func(p *Params) {
		p.Sensors = failingSensors{err: boom}
	})
	cfg := f.addConfig(t, 1, "broken", nil)

	_, err := f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerScheduled)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "execute config broken")

	var execs []execdomain.Execution
	require.NoError(t, f.db.Raw(`SELECT id, status, errors FROM billing_executions`).Scan(&execs).Error)
	require.Len(t, execs, 1)
	assert.Equal(t, execdomain.StatusFailed, execs[0].Status)
	assert.Contains(t, string(execs[0].Errors), "sensor store unavailable")

	stored, err := f.configs.FindByID(context.Background(), f.db, cfg.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastFailed())

	require.Len(t, f.notifier.sends, 1)
	assert.Equal(t, "FAILED", f.notifier.sends[0].summary.Status)
}

func TestExecuteCapsStoredErrors(t *testing.T) {
	f := setup(t, func(p *Params) {
		cfg := config.DefaultEngineConfig()
		cfg.ErrorsCap = 2
		p.Engine = config.NewStaticEngineConfigHolder(cfg)
	})
	cfg := f.addConfig(t, 1, "capped", nil)
	for i := int64(1); i <= 4; i++ {
		f.addSensor(t, 100+i, 10, "M-"+snowflake.ID(100+i).String())
	}

	res, err := f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 4, res.FailedCount)
	assert.Len(t, res.Errors, 2)
	assert.True(t, res.ErrorsTruncated)
}

type failingProgress struct {
	execdomain.Repository
	failAt int
	calls  int
	err    error
}

func (r *failingProgress) UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, progress execdomain.Progress) error {
	r.calls++
	if r.calls == r.failAt {
		return r.err
	}
	return r.Repository.UpdateProgress(ctx, db, id, progress)
}

func TestExecuteAbortKeepsCauseWhenErrorsAreCapped(t *testing.T) {
	boom := errors.New("progress store unavailable")
	f := setup(t, func(p *Params) {
		cfg := config.DefaultEngineConfig()
		cfg.ErrorsCap = 2
		p.Engine = config.NewStaticEngineConfigHolder(cfg)
		p.Executions = &failingProgress{Repository: execrepository.Provide(), failAt: 3, err: boom}
	})
	cfg := f.addConfig(t, 1, "capped-abort", nil)
	for i := int64(1); i <= 3; i++ {
		f.addSensor(t, 100+i, 10, "M-"+snowflake.ID(100+i).String())
	}

	_, err := f.svc.Execute(context.Background(), cfg.ID, execdomain.TriggerScheduled)
	require.ErrorIs(t, err, boom)

	var execs []execdomain.Execution
	require.NoError(t, f.db.Raw(`SELECT id, status, errors FROM billing_executions`).Scan(&execs).Error)
	require.Len(t, execs, 1)
	assert.Equal(t, execdomain.StatusFailed, execs[0].Status)

	var stored []DeviceError
	require.NoError(t, json.Unmarshal(execs[0].Errors, &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, tariffdomain.ErrNoActiveTariff.Error(), stored[0].Error)
	assert.Contains(t, stored[1].Error, "progress store unavailable")
}

func TestExecuteLeavesOtherConfigsUntouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bookedNext := time.Date(2025, 4, 1, 11, 0, 0, 0, time.UTC)
	bookedLast := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	lastStatus := "SUCCESS"

	active := f.addConfig(t, 1, "active-meters", nil, func(c *billingconfigdomain.BillingConfig) {
		c.SensorStatuses = billingconfigdomain.EncodeList([]string{"ACTIVE"})
	})
	f.addConfig(t, 2, "suspended-meters", nil, func(c *billingconfigdomain.BillingConfig) {
		c.SensorStatuses = billingconfigdomain.EncodeList([]string{"SUSPENDED"})
		c.NextRun = &bookedNext
		c.LastRun = &bookedLast
		c.LastRunStatus = &lastStatus
		c.TotalInvoices = 4
	})
	f.addTariff(t, 50, 10)
	f.addSensor(t, 100, 10, "M-A")
	f.addSensor(t, 200, 10, "M-S")
	require.NoError(t, f.db.Exec(`UPDATE sensors SET status = ? WHERE id = ?`, "SUSPENDED", 200).Error)
	f.addReading(t, 1, 100, feb(5), 25500, 25500, nil, false)
	f.addReading(t, 2, 200, feb(5), 25500, 25500, nil, false)

	res, err := f.svc.Execute(ctx, active.ID, execdomain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSensors)
	assert.Equal(t, execdomain.StatusSuccess, res.Status)

	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM invoices WHERE sensor_id = ?`, 200))
	assert.Equal(t, int64(0), f.countRows(t, `SELECT COUNT(*) FROM water_consumptions WHERE sensor_id = ? AND invoiced = true`, 200))

	other, err := f.configs.FindByID(ctx, f.db, 2)
	require.NoError(t, err)
	require.NotNil(t, other.NextRun)
	require.NotNil(t, other.LastRun)
	assert.True(t, other.NextRun.Equal(bookedNext), "next_run %s", other.NextRun)
	assert.True(t, other.LastRun.Equal(bookedLast), "last_run %s", other.LastRun)
	require.NotNil(t, other.LastRunStatus)
	assert.Equal(t, "SUCCESS", *other.LastRunStatus)
	assert.Equal(t, int64(4), other.TotalInvoices)
}

func TestFailureReasonLabels(t *testing.T) {
	cases := map[error]string{
		tariffdomain.ErrNoActiveTariff:   "no_active_tariff",
		billingperiod.ErrNoBillableData:  "no_billable_data",
		charge.ErrZeroConsumption:        "zero_consumption",
		charge.ErrNegativeConsumption:    "negative_consumption",
		invoicedomain.ErrInvoiceExists:   "invoice_exists",
	}
	for err, want := range cases {
		if got := failureReason(err); got != want {
			t.Fatalf("failureReason(%v) = %q, want %q", err, got, want)
		}
	}
}
