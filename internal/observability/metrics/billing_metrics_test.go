package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyFailureReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FailureReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("insert: %w", context.DeadlineExceeded), want: FailureReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: FailureReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: FailureReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: FailureReasonUniqueViolation},
		{name: "pg_other", err: &pgconn.PgError{Code: "42P01"}, want: FailureReasonDB},
		{name: "unknown", err: errors.New("boom"), want: FailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailureReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBillingMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newBillingMetrics(registry, Config{ServiceName: "tirta", Environment: "test"})

	m.IncExecutionRun(TriggerScheduled, "SUCCESS")
	m.IncExecutionRun(TriggerScheduled, "SUCCESS")
	m.IncDeviceFailure(FailureReasonUnknown)
	m.ObserveInvoice(58.2)
	m.SetArmedSchedules(4)

	if got := testutil.ToFloat64(m.executionRuns.WithLabelValues("scheduled", "success")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.deviceFailures.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.invoicesCreated); got != 1 {
		t.Fatalf("expected 1 invoice, got %v", got)
	}
	if got := testutil.ToFloat64(m.armedSchedules); got != 4 {
		t.Fatalf("expected 4 armed schedules, got %v", got)
	}
}

func TestNilBillingMetricsIsSafe(t *testing.T) {
	var m *BillingMetrics
	m.IncExecutionRun(TriggerManual, "FAILED")
	m.ObserveInvoice(1)
	m.IncFireSkipped(SkipReasonRetryExhausted)
}
