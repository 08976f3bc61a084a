// Package executor runs one billing config end to end: it selects the
// config's sensors, invoices each one in its own transaction and records the
// run as a billing execution.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"github.com/smallbiznis/tirta/internal/billingperiod"
	"github.com/smallbiznis/tirta/internal/charge"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/cloudmetrics"
	"github.com/smallbiznis/tirta/internal/config"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	"github.com/smallbiznis/tirta/internal/events"
	"github.com/smallbiznis/tirta/internal/executor/guard"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	"github.com/smallbiznis/tirta/internal/notification"
	obscontext "github.com/smallbiznis/tirta/internal/observability/context"
	obslogger "github.com/smallbiznis/tirta/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"github.com/smallbiznis/tirta/internal/recurrence"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"github.com/smallbiznis/tirta/pkg/money"
	"github.com/smallbiznis/tirta/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig       = errors.New("invalid_config")
	ErrExecutionInProgress = guard.ErrExecutionInProgress
)

const finalizeTimeout = 30 * time.Second

// DeviceError is one failed sensor as reported to callers.
type DeviceError = execdomain.DeviceError

// Result summarizes a finished execution.
type Result struct {
	ExecutionID     snowflake.ID       `json:"execution_id"`
	ConfigID        snowflake.ID       `json:"config_id"`
	ConfigCode      string             `json:"config_code"`
	Trigger         execdomain.Trigger `json:"trigger"`
	Status          execdomain.Status  `json:"status"`
	CorrelationID   string             `json:"correlation_id"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
	TotalSensors    int                `json:"total_sensors"`
	SuccessCount    int                `json:"success_count"`
	FailedCount     int                `json:"failed_count"`
	InvoicesCreated int                `json:"invoices_created"`
	TotalAmount     float64            `json:"total_amount"`
	TotalM3         float64            `json:"total_m3"`
	Errors          []DeviceError      `json:"errors"`
	ErrorsTruncated bool               `json:"errors_truncated,omitempty"`
	NextRun         *time.Time         `json:"next_run,omitempty"`

	Invoices []invoicedomain.Invoice `json:"-"`
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Engine       *config.EngineConfigHolder `optional:"true"`
	Configs      billingconfigdomain.Repository
	Executions   execdomain.Repository
	Sensors      sensordomain.Repository
	Consumptions consumptiondomain.Repository
	Tariffs      tariffdomain.Service
	Invoices     invoicedomain.Service
	Periods      *billingperiod.Calculator
	Guard        *guard.Guard
	Notifier     notification.Dispatcher
	Events       events.Publisher            `optional:"true"`
	Metrics      *obsmetrics.Metrics         `optional:"true"`
	Batch        *cloudmetrics.BatchExporter `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	engine       *config.EngineConfigHolder
	configs      billingconfigdomain.Repository
	executions   execdomain.Repository
	sensors      sensordomain.Repository
	consumptions consumptiondomain.Repository
	tariffs      tariffdomain.Service
	invoices     invoicedomain.Service
	periods      *billingperiod.Calculator
	guard        *guard.Guard
	notifier     notification.Dispatcher
	events       events.Publisher
	metrics      *obsmetrics.Metrics
	billing      *obsmetrics.BillingMetrics
	batch        *cloudmetrics.BatchExporter
}

func New(p Params) *Service {
	publisher := p.Events
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("executor"),
		genID:        p.GenID,
		clock:        p.Clock,
		engine:       p.Engine,
		configs:      p.Configs,
		executions:   p.Executions,
		sensors:      p.Sensors,
		consumptions: p.Consumptions,
		tariffs:      p.Tariffs,
		invoices:     p.Invoices,
		periods:      p.Periods,
		guard:        p.Guard,
		notifier:     p.Notifier,
		events:       publisher,
		metrics:      p.Metrics,
		billing:      obsmetrics.Billing(),
		batch:        p.Batch,
	}
}

// run is the in-memory tally of one execution.
type run struct {
	cfg       *billingconfigdomain.BillingConfig
	exec      *execdomain.Execution
	errorsCap int

	total     int
	success   int
	failed    int
	errors    []DeviceError
	truncated bool
	invoices  []invoicedomain.Invoice
	amount    money.Decimal
	m3        money.Decimal
}

func (r *run) progress() execdomain.Progress {
	return execdomain.Progress{
		ProcessedCount: r.success + r.failed,
		SuccessCount:   r.success,
		FailedCount:    r.failed,
	}
}

func (r *run) recordFailure(entry DeviceError) {
	r.failed++
	r.addError(entry)
}

func (r *run) addError(entry DeviceError) {
	if r.errorsCap > 0 && len(r.errors) >= r.errorsCap {
		r.truncated = true
		return
	}
	r.errors = append(r.errors, entry)
}

// recordAbort stores the run-level cause. It always lands: at the cap it
// takes the last slot.
func (r *run) recordAbort(entry DeviceError) {
	if r.errorsCap > 0 && len(r.errors) >= r.errorsCap {
		r.truncated = true
		r.errors[len(r.errors)-1] = entry
		return
	}
	r.errors = append(r.errors, entry)
}

func (r *run) recordInvoice(inv invoicedomain.Invoice) {
	r.success++
	r.invoices = append(r.invoices, inv)
	r.amount = r.amount.Add(money.NewDecimalFromFloat(inv.TotalAmount))
	r.m3 = r.m3.Add(money.NewDecimalFromFloat(inv.ConsumptionM3))
}

// Execute bills every eligible sensor of the config. Executions of the same
// config never overlap; a second caller gets ErrExecutionInProgress.
func (s *Service) Execute(ctx context.Context, configID snowflake.ID, trigger execdomain.Trigger) (*Result, error) {
	cfg, err := s.configs.FindByID(ctx, s.db, configID)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configID, err)
	}
	if cfg == nil || !cfg.IsActive {
		return nil, ErrInvalidConfig
	}

	lockStart := time.Now()
	release, err := s.guard.Acquire(ctx, cfg.ID)
	s.billing.ObserveLockWait(time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	defer release()

	engine := s.engine.Get()
	runCtx, cancel := context.WithTimeout(ctx, engine.ExecutionTimeout)
	defer cancel()
	runCtx, correlationID := correlation.EnsureCorrelationID(runCtx)

	startedAt := s.clock.Now().UTC()
	exec := &execdomain.Execution{
		ID:            s.genID.Generate(),
		ConfigID:      cfg.ID,
		Trigger:       trigger,
		Status:        execdomain.StatusRunning,
		CorrelationID: correlationID,
		StartedAt:     startedAt,
		Errors:        datatypes.JSON("[]"),
		Summary:       datatypes.JSON("{}"),
		CreatedAt:     startedAt,
		UpdatedAt:     startedAt,
	}
	if err := s.executions.Insert(runCtx, s.db, exec); err != nil {
		return nil, fmt.Errorf("execute config %s: %w", cfg.Code, err)
	}

	runCtx = obscontext.WithConfigID(runCtx, cfg.ID.String())
	runCtx = obscontext.WithExecutionID(runCtx, exec.ID.String())
	log := obslogger.WithContext(runCtx, s.log).With(
		zap.String("config_code", cfg.Code),
		zap.String("trigger", string(trigger)),
	)
	log.Info("billing.execution.started")

	r := &run{cfg: cfg, exec: exec, errorsCap: engine.ErrorsCap}
	if err := s.process(runCtx, r, log); err != nil {
		return nil, s.abort(runCtx, r, err, log)
	}
	result, err := s.complete(runCtx, r, log)
	if err != nil {
		return nil, s.abort(runCtx, r, err, log)
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, r *run, log *zap.Logger) error {
	if err := s.invoices.EnsureSequence(ctx); err != nil {
		return fmt.Errorf("ensure invoice sequence: %w", err)
	}

	sensors, err := s.sensors.ListEligible(ctx, s.db, r.cfg.Statuses(), r.cfg.CategoryIDs())
	if err != nil {
		return fmt.Errorf("select sensors: %w", err)
	}
	r.total = len(sensors)
	if err := s.executions.SetTotalSensors(ctx, s.db, r.exec.ID, r.total); err != nil {
		return fmt.Errorf("record sensor count: %w", err)
	}
	log.Info("billing.execution.sensors_selected", zap.Int("total_sensors", r.total))

	for _, sensor := range sensors {
		if err := ctx.Err(); err != nil {
			return err
		}

		inv, err := s.billSensor(ctx, r, sensor)
		if err != nil {
			reason := failureReason(err)
			r.recordFailure(DeviceError{
				SensorID:    sensor.ID.String(),
				MeterNumber: sensor.Serial,
				Error:       err.Error(),
			})
			s.billing.IncDeviceOutcome(obsmetrics.DeviceOutcomeFailed)
			s.billing.IncDeviceFailure(reason)
			log.Warn("billing.device.failed",
				zap.String("sensor_id", sensor.ID.String()),
				zap.String("serial", sensor.Serial),
				zap.String("reason", reason),
				zap.Error(err),
			)
			if perr := s.executions.UpdateProgress(ctx, s.db, r.exec.ID, r.progress()); perr != nil {
				return fmt.Errorf("persist progress: %w", perr)
			}
			continue
		}

		r.recordInvoice(*inv)
		s.billing.IncDeviceOutcome(obsmetrics.DeviceOutcomeSuccess)
		s.billing.ObserveInvoice(inv.TotalAmount)
		log.Debug("billing.device.invoiced",
			zap.String("sensor_id", sensor.ID.String()),
			zap.String("invoice_number", inv.Number),
			zap.Float64("total_amount", inv.TotalAmount),
		)
	}
	return nil
}

// billSensor creates at most one invoice for the sensor. Numbering, the
// invoice row, the consumption back-references and the execution progress
// commit together or not at all.
func (s *Service) billSensor(ctx context.Context, r *run, sensor sensordomain.Sensor) (*invoicedomain.Invoice, error) {
	tariff, err := s.tariffs.Resolve(ctx, sensor.TariffCategoryID)
	if err != nil {
		return nil, err
	}

	period, err := s.periods.Compute(ctx, sensor, *r.cfg, r.exec.StartedAt)
	if err != nil {
		return nil, err
	}

	readings, err := s.readings(ctx, sensor.ID, period)
	if err != nil {
		return nil, err
	}

	charges, err := charge.Compute(readings.liters, *tariff)
	if err != nil {
		return nil, err
	}

	draft := invoicedomain.Draft{
		CustomerID:        sensor.CustomerID,
		SensorID:          sensor.ID,
		TariffID:          tariff.ID,
		ConfigID:          r.cfg.ID,
		ExecutionID:       r.exec.ID,
		PeriodStart:       period.From(),
		PeriodEnd:         period.To(),
		ConsumptionM3:     charges.ConsumptionM3,
		WaterCharge:       charges.WaterCharge,
		SewerageCharge:    charges.SewerageCharge,
		FixedCharge:       charges.FixedCharge,
		Taxes:             charges.Taxes,
		AdditionalCharges: charges.AdditionalCharges,
		Discounts:         charges.Discounts,
		TotalAmount:       charges.Total,
		IssuedAt:          s.clock.Now(),
		Metadata: invoicedomain.Metadata{
			PreviousReading:   readings.previous,
			CurrentReading:    readings.current,
			ConsumptionLiters: readings.liters,
			RecordCount:       len(period.Records),
			TariffName:        tariff.Name,
		},
	}

	ids := make([]snowflake.ID, 0, len(period.Records))
	for _, record := range period.Records {
		ids = append(ids, record.ID)
	}

	next := r.progress()
	next.ProcessedCount++
	next.SuccessCount++

	var created *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.invoices.CreateInTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		if err := s.consumptions.MarkInvoiced(ctx, tx, ids, inv.ID); err != nil {
			return err
		}
		if err := s.executions.UpdateProgress(ctx, tx, r.exec.ID, next); err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type meterReadings struct {
	previous float64
	current  float64
	liters   float64
}

// readings derives the meter values printed on the invoice. The previous
// reading comes from the first record, then from the latest reading before
// the window, then from the first record's own delta.
func (s *Service) readings(ctx context.Context, sensorID snowflake.ID, period *billingperiod.Period) (meterReadings, error) {
	first := period.Records[0]
	last := period.Records[len(period.Records)-1]

	var previous money.Decimal
	switch {
	case first.PreviousAmount != nil:
		previous = money.NewDecimalFromFloat(*first.PreviousAmount)
	default:
		prior, err := s.consumptions.LatestBefore(ctx, s.db, sensorID, period.From())
		if err != nil {
			return meterReadings{}, err
		}
		if prior != nil {
			previous = money.NewDecimalFromFloat(prior.Amount)
		} else {
			previous = money.NewDecimalFromFloat(first.Amount).Sub(money.NewDecimalFromFloat(first.Consumption))
		}
	}

	liters := money.Zero
	for _, record := range period.Records {
		liters = liters.Add(money.NewDecimalFromFloat(record.Consumption))
	}

	return meterReadings{
		previous: previous.Float64(),
		current:  last.Amount,
		liters:   liters.Float64(),
	}, nil
}

// complete finalizes a run whose device loop ended normally.
func (s *Service) complete(ctx context.Context, r *run, log *zap.Logger) (*Result, error) {
	status := execdomain.ClassifyStatus(r.success, r.failed)
	return s.finalize(ctx, r, status, log)
}

// abort force-finalizes the run as FAILED after a run-level error and
// returns the wrapped cause.
func (s *Service) abort(ctx context.Context, r *run, cause error, log *zap.Logger) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		s.billing.IncExecutionTimeout()
	}
	r.recordAbort(DeviceError{Error: cause.Error()})
	log.Error("billing.execution.aborted", zap.Error(cause))

	if _, err := s.finalize(ctx, r, execdomain.StatusFailed, log); err != nil {
		log.Error("billing.execution.finalize_failed", zap.Error(err))
	}
	return fmt.Errorf("execute config %s: %w", r.cfg.Code, cause)
}

func (s *Service) finalize(ctx context.Context, r *run, status execdomain.Status, log *zap.Logger) (*Result, error) {
	// Bookkeeping must land even when the run context has expired.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	completedAt := s.clock.Now().UTC()
	duration := completedAt.Sub(r.exec.StartedAt)

	var nextRun *time.Time
	if next, err := recurrence.NextForConfig(*r.cfg, completedAt); err == nil {
		utc := next.UTC()
		nextRun = &utc
	} else {
		log.Warn("billing.execution.next_run_failed", zap.Error(err))
	}

	summary := execdomain.Summary{
		ConfigCode:      r.cfg.Code,
		InvoicesCreated: len(r.invoices),
		TotalAmount:     r.amount.Float64(),
		TotalM3:         r.m3.Float64(),
		ErrorsTruncated: r.truncated,
		DurationMS:      duration.Milliseconds(),
	}
	if nextRun != nil {
		summary.NextRun = nextRun.Format(time.RFC3339)
	}

	deviceErrors := r.errors
	if deviceErrors == nil {
		deviceErrors = []DeviceError{}
	}
	errorsJSON, err := json.Marshal(deviceErrors)
	if err != nil {
		return nil, err
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(persistCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.executions.Finalize(persistCtx, tx, r.exec.ID, execdomain.Final{
			Status:      status,
			CompletedAt: completedAt,
			Progress:    r.progress(),
			Errors:      errorsJSON,
			Summary:     summaryJSON,
		}); err != nil {
			return err
		}
		return s.configs.UpdateRunState(persistCtx, tx, r.cfg.ID, billingconfigdomain.RunState{
			LastRun:       completedAt,
			LastRunStatus: billingconfigdomain.RunStatus(status),
			InvoicesAdded: len(r.invoices),
			NextRun:       nextRun,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("finalize execution: %w", err)
	}

	result := &Result{
		ExecutionID:     r.exec.ID,
		ConfigID:        r.cfg.ID,
		ConfigCode:      r.cfg.Code,
		Trigger:         r.exec.Trigger,
		Status:          status,
		CorrelationID:   r.exec.CorrelationID,
		StartedAt:       r.exec.StartedAt,
		CompletedAt:     completedAt,
		TotalSensors:    r.total,
		SuccessCount:    r.success,
		FailedCount:     r.failed,
		InvoicesCreated: len(r.invoices),
		TotalAmount:     summary.TotalAmount,
		TotalM3:         summary.TotalM3,
		Errors:          deviceErrors,
		ErrorsTruncated: r.truncated,
		NextRun:         nextRun,
		Invoices:        r.invoices,
	}

	log.Info("billing.execution.finished",
		zap.String("status", string(status)),
		zap.Int("total_sensors", r.total),
		zap.Int("success_count", r.success),
		zap.Int("failed_count", r.failed),
		zap.Duration("duration", duration),
	)

	s.report(persistCtx, r, result, duration)
	return result, nil
}

// report fans the finished run out to events, notifications and metrics.
// None of these can fail the execution.
func (s *Service) report(ctx context.Context, r *run, result *Result, duration time.Duration) {
	trigger := string(result.Trigger)
	s.billing.IncExecutionRun(trigger, string(result.Status))
	s.billing.ObserveExecutionDuration(trigger, duration)
	if s.metrics != nil {
		s.metrics.RecordInvoicesGenerated(ctx, result.ConfigCode, trigger, result.InvoicesCreated)
	}

	s.batch.Observe(ctx, cloudmetrics.ExecutionSample{
		ConfigCode:   result.ConfigCode,
		Trigger:      trigger,
		Status:       string(result.Status),
		TotalSensors: result.TotalSensors,
		Success:      result.SuccessCount,
		Failed:       result.FailedCount,
		TotalAmount:  result.TotalAmount,
		Duration:     duration,
		CompletedAt:  result.CompletedAt,
	})

	batch := make([]events.Event, 0, len(r.invoices)+1)
	for _, inv := range r.invoices {
		batch = append(batch, events.NewEvent(events.TypeInvoiceGenerated, inv.SensorID.String(), events.InvoiceGenerated{
			InvoiceID:   inv.ID.String(),
			Number:      inv.Number,
			CustomerID:  inv.CustomerID.String(),
			SensorID:    inv.SensorID.String(),
			ConfigID:    inv.ConfigID.String(),
			ExecutionID: inv.ExecutionID.String(),
			PeriodStart: inv.PeriodStart,
			PeriodEnd:   inv.PeriodEnd,
			TotalAmount: inv.TotalAmount,
			DueDate:     inv.DueDate,
		}))
	}
	batch = append(batch, events.NewEvent(events.TypeExecutionFinished, result.ConfigID.String(), events.ExecutionFinished{
		ExecutionID:  result.ExecutionID.String(),
		ConfigID:     result.ConfigID.String(),
		ConfigCode:   result.ConfigCode,
		Trigger:      trigger,
		Status:       string(result.Status),
		TotalSensors: result.TotalSensors,
		SuccessCount: result.SuccessCount,
		FailedCount:  result.FailedCount,
	}))
	if err := s.events.Publish(ctx, batch...); err != nil {
		s.log.Warn("billing.events.publish_failed",
			zap.String("execution_id", result.ExecutionID.String()),
			zap.Error(err),
		)
	}

	notify := r.cfg.NotifyOnError
	if result.Status == execdomain.StatusSuccess {
		notify = r.cfg.NotifyOnSuccess
	}
	if notify {
		s.notifier.Send(ctx, r.cfg.Emails(), buildSummary(r.cfg, result))
	}
}

func buildSummary(cfg *billingconfigdomain.BillingConfig, result *Result) notification.Summary {
	summary := notification.Summary{
		ConfigName:   cfg.Name,
		ConfigCode:   cfg.Code,
		ExecutionID:  result.ExecutionID.String(),
		Trigger:      string(result.Trigger),
		Status:       string(result.Status),
		StartedAt:    result.StartedAt.Format(time.RFC3339),
		CompletedAt:  result.CompletedAt.Format(time.RFC3339),
		TotalSensors: result.TotalSensors,
		SuccessCount: result.SuccessCount,
		FailedCount:  result.FailedCount,
	}
	if result.NextRun != nil {
		summary.NextRun = result.NextRun.Format(time.RFC3339)
	}
	for _, e := range result.Errors {
		summary.Errors = append(summary.Errors, notification.SummaryError{
			SensorID:    e.SensorID,
			MeterNumber: e.MeterNumber,
			Error:       e.Error,
		})
	}
	return summary
}

// failureReason labels per-device failures with a bounded set of values.
func failureReason(err error) string {
	switch {
	case errors.Is(err, tariffdomain.ErrNoActiveTariff):
		return "no_active_tariff"
	case errors.Is(err, billingperiod.ErrNoBillableData):
		return "no_billable_data"
	case errors.Is(err, billingperiod.ErrInvalidTimezone):
		return "invalid_timezone"
	case errors.Is(err, charge.ErrZeroConsumption):
		return "zero_consumption"
	case errors.Is(err, charge.ErrNegativeConsumption):
		return "negative_consumption"
	case errors.Is(err, invoicedomain.ErrInvoiceExists):
		return "invoice_exists"
	case errors.Is(err, consumptiondomain.ErrAlreadyInvoiced):
		return "already_invoiced"
	default:
		return obsmetrics.ClassifyFailureReason(err)
	}
}
