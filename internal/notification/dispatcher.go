// Package notification emails execution summaries to a config's recipients.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/tirta/internal/config"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"github.com/smallbiznis/tirta/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

const (
	channelEmail     = "email"
	summaryTemplate  = "execution_summary"
	defaultSendLimit = 30 * time.Second
)

// Summary is what a recipient sees about one execution.
type Summary struct {
	ConfigName   string
	ConfigCode   string
	ExecutionID  string
	Trigger      string
	Status       string
	StartedAt    string
	CompletedAt  string
	TotalSensors int
	SuccessCount int
	FailedCount  int
	NextRun      string
	Errors       []SummaryError
}

type SummaryError struct {
	SensorID    string
	MeterNumber string
	Error       string
}

// Dispatcher sends summaries without blocking the caller. Delivery failures
// are logged and never reach the execution.
type Dispatcher interface {
	Send(ctx context.Context, emails []string, summary Summary)
	Wait()
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Provider email.Provider
	Engine   *config.EngineConfigHolder `optional:"true"`
	Metrics  *obsmetrics.Metrics        `optional:"true"`
}

type dispatcher struct {
	log      *zap.Logger
	provider email.Provider
	engine   *config.EngineConfigHolder
	metrics  *obsmetrics.Metrics
	timeout  time.Duration
	wg       sync.WaitGroup
}

func New(p Params) Dispatcher {
	return &dispatcher{
		log:      p.Log.Named("notification"),
		provider: p.Provider,
		engine:   p.Engine,
		metrics:  p.Metrics,
		timeout:  defaultSendLimit,
	}
}

func (d *dispatcher) Send(ctx context.Context, emails []string, summary Summary) {
	if len(emails) == 0 || d.provider == nil {
		return
	}
	recipients := append([]string(nil), emails...)
	subject := d.engine.Get().NotificationSubject + ": " + summary.ConfigName + " " + summary.Status

	// Detach from the caller so the send outlives the execution context.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		err := d.provider.SendTemplate(sendCtx, recipients, subject, summaryTemplate, summary)
		status := "sent"
		if err != nil {
			status = "failed"
			d.log.Warn("notification.failed",
				zap.String("execution_id", summary.ExecutionID),
				zap.String("config_code", summary.ConfigCode),
				zap.Int("recipients", len(recipients)),
				zap.Error(err),
			)
		} else {
			d.log.Info("notification.sent",
				zap.String("execution_id", summary.ExecutionID),
				zap.Int("recipients", len(recipients)),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordNotification(sendCtx, channelEmail, status)
		}
	}()
}

// Wait blocks until every pending send has finished.
func (d *dispatcher) Wait() {
	d.wg.Wait()
}

func registerLifecycle(lc fx.Lifecycle, d Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				d.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
