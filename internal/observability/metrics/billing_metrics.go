package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

const (
	DeviceOutcomeSuccess = "success"
	DeviceOutcomeFailed  = "failed"
)

const (
	FailureReasonDeadlineExceeded     = "deadline_exceeded"
	FailureReasonDBLockTimeout        = "db_lock_timeout"
	FailureReasonSerializationFailure = "serialization_failure"
	FailureReasonUniqueViolation      = "unique_violation"
	FailureReasonDB                   = "db"
	FailureReasonUnknown              = "unknown"
)

const (
	SkipReasonRetryDisabled  = "retry_disabled"
	SkipReasonRetryExhausted = "retry_exhausted"
	SkipReasonInProgress     = "in_progress"
	SkipReasonInactive       = "inactive"
)

// BillingMetrics captures billing run health signals.
type BillingMetrics struct {
	executionRuns     *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	executionTimeouts prometheus.Counter
	deviceOutcomes    *prometheus.CounterVec
	deviceFailures    *prometheus.CounterVec
	invoicesCreated   prometheus.Counter
	invoiceAmount     prometheus.Observer
	firesSkipped      *prometheus.CounterVec
	fireLag           prometheus.Observer
	lockWait          prometheus.Observer
	armedSchedules    prometheus.Gauge
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

// NewBillingMetricsWithRegisterer builds an unshared registry, used by tests
// and by the push exporter which scrapes its own gatherer.
func NewBillingMetricsWithRegisterer(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	return newBillingMetrics(registerer, cfg)
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "tirta"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	executionRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tirta_billing_execution_runs_total",
		Help:        "Billing executions by trigger and final status.",
		ConstLabels: constLabels,
	}, []string{"trigger", "status"})
	executionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tirta_billing_execution_duration_seconds",
		Help:        "Billing execution wall time.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	executionTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "tirta_billing_execution_timeouts_total",
		Help:        "Billing executions that exceeded the run deadline.",
		ConstLabels: constLabels,
	})
	deviceOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tirta_billing_device_outcomes_total",
		Help:        "Per-sensor billing outcomes.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	deviceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tirta_billing_device_failures_total",
		Help:        "Per-sensor billing failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	invoicesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "tirta_billing_invoices_created_total",
		Help:        "Invoices created by billing executions.",
		ConstLabels: constLabels,
	})
	invoiceAmount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "tirta_billing_invoice_amount",
		Help:        "Invoice total distribution.",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
	firesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tirta_billing_fires_skipped_total",
		Help:        "Scheduled fires that did not start an execution.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	fireLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "tirta_billing_fire_lag_seconds",
		Help:        "Delay between the planned fire time and the actual start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "tirta_billing_lock_wait_seconds",
		Help:        "Time spent acquiring the distributed execution lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	})
	armedSchedules := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tirta_billing_armed_schedules",
		Help:        "Billing configs with an armed timer.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		executionRuns,
		executionDuration,
		executionTimeouts,
		deviceOutcomes,
		deviceFailures,
		invoicesCreated,
		invoiceAmount,
		firesSkipped,
		fireLag,
		lockWait,
		armedSchedules,
	)

	return &BillingMetrics{
		executionRuns:     executionRuns,
		executionDuration: executionDuration,
		executionTimeouts: executionTimeouts,
		deviceOutcomes:    deviceOutcomes,
		deviceFailures:    deviceFailures,
		invoicesCreated:   invoicesCreated,
		invoiceAmount:     invoiceAmount,
		firesSkipped:      firesSkipped,
		fireLag:           fireLag,
		lockWait:          lockWait,
		armedSchedules:    armedSchedules,
	}
}

// IncExecutionRun counts a finalized execution.
func (m *BillingMetrics) IncExecutionRun(trigger, status string) {
	if m == nil {
		return
	}
	m.executionRuns.WithLabelValues(normalizeLabel(trigger), normalizeLabel(status)).Inc()
}

// ObserveExecutionDuration records execution latency in seconds.
func (m *BillingMetrics) ObserveExecutionDuration(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executionDuration.WithLabelValues(normalizeLabel(trigger)).Observe(duration.Seconds())
}

func (m *BillingMetrics) IncExecutionTimeout() {
	if m == nil {
		return
	}
	m.executionTimeouts.Inc()
}

// IncDeviceOutcome counts one processed sensor.
func (m *BillingMetrics) IncDeviceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.deviceOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *BillingMetrics) IncDeviceFailure(reason string) {
	if m == nil {
		return
	}
	m.deviceFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveInvoice counts a created invoice and its total.
func (m *BillingMetrics) ObserveInvoice(total float64) {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
	m.invoiceAmount.Observe(total)
}

func (m *BillingMetrics) IncFireSkipped(reason string) {
	if m == nil {
		return
	}
	m.firesSkipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveFireLag records lag between the planned fire time and the actual run start.
func (m *BillingMetrics) ObserveFireLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.fireLag.Observe(duration.Seconds())
}

func (m *BillingMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

func (m *BillingMetrics) SetArmedSchedules(count int) {
	if m == nil {
		return
	}
	m.armedSchedules.Set(float64(count))
}

// ClassifyFailureReason maps infrastructure errors to low-cardinality reasons.
// Domain errors are labelled by the caller before falling back here.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return FailureReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return FailureReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return FailureReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return FailureReasonUniqueViolation
	}
	if isDBError(err) {
		return FailureReasonDB
	}
	return FailureReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrNotImplemented) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func normalizeLabel(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return "unknown"
	}
	return strings.ToLower(val)
}
