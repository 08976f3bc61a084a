package cloudmetrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tirta/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("batch.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewBatchExporter),
)

// ExecutionSample is the outcome of one billing execution.
type ExecutionSample struct {
	ConfigCode   string
	Trigger      string
	Status       string
	TotalSensors int
	Success      int
	Failed       int
	TotalAmount  float64
	Duration     time.Duration
	CompletedAt  time.Time
}

// BatchExporter keeps last-run gauges in a private registry and pushes them
// after every execution. A nil exporter is valid and does nothing.
type BatchExporter struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	lastCompletion *prometheus.GaugeVec
	lastDuration   *prometheus.GaugeVec
	lastSensors    *prometheus.GaugeVec
	lastAmount     *prometheus.GaugeVec
	lastStatus     *prometheus.GaugeVec
}

var statuses = []string{"success", "partial", "failed"}

// NewBatchExporter returns nil when no pusher is configured.
func NewBatchExporter(cfg config.Config, pusher Pusher, log *zap.Logger) *BatchExporter {
	if pusher == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return newBatchExporter(prometheus.NewRegistry(), pusher, cfg.Environment, log)
}

func newBatchExporter(registry *prometheus.Registry, pusher Pusher, environment string, log *zap.Logger) *BatchExporter {
	environment = strings.TrimSpace(environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"env": environment}

	b := &BatchExporter{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("cloudmetrics"),
		lastCompletion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tirta_billing_last_completion_timestamp_seconds",
			Help:        "Unix time of the last completed execution per config.",
			ConstLabels: constLabels,
		}, []string{"config_code", "trigger"}),
		lastDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tirta_billing_last_duration_seconds",
			Help:        "Wall time of the last execution per config.",
			ConstLabels: constLabels,
		}, []string{"config_code"}),
		lastSensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tirta_billing_last_sensors",
			Help:        "Sensors processed by the last execution per config and outcome.",
			ConstLabels: constLabels,
		}, []string{"config_code", "outcome"}),
		lastAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tirta_billing_last_invoiced_amount",
			Help:        "Sum of invoice totals produced by the last execution per config.",
			ConstLabels: constLabels,
		}, []string{"config_code"}),
		lastStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "tirta_billing_last_status",
			Help:        "1 for the status of the last execution per config, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"config_code", "status"}),
	}
	registry.MustRegister(b.lastCompletion, b.lastDuration, b.lastSensors, b.lastAmount, b.lastStatus)
	return b
}

// Observe records the sample and pushes the registry. Push failures are
// logged and never surface to the caller.
func (b *BatchExporter) Observe(ctx context.Context, s ExecutionSample) {
	if b == nil {
		return
	}
	code := normalizeLabel(s.ConfigCode)
	completed := s.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	b.lastCompletion.WithLabelValues(code, normalizeLabel(s.Trigger)).Set(float64(completed.Unix()))
	b.lastDuration.WithLabelValues(code).Set(s.Duration.Seconds())
	b.lastSensors.WithLabelValues(code, "total").Set(float64(s.TotalSensors))
	b.lastSensors.WithLabelValues(code, "success").Set(float64(s.Success))
	b.lastSensors.WithLabelValues(code, "failed").Set(float64(s.Failed))
	b.lastAmount.WithLabelValues(code).Set(s.TotalAmount)

	current := normalizeLabel(s.Status)
	for _, status := range statuses {
		value := 0.0
		if status == current {
			value = 1
		}
		b.lastStatus.WithLabelValues(code, status).Set(value)
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPushTimeout)
	defer cancel()
	if err := b.pusher.Push(pushCtx, b.registry); err != nil {
		b.log.Warn("batch metrics push failed",
			zap.String("config_code", code),
			zap.Error(err),
		)
	}
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
