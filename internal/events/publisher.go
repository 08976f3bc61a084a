// Package events publishes billing domain events to Kafka as JSON.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	skafka "github.com/segmentio/kafka-go"
	"github.com/smallbiznis/tirta/internal/config"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"github.com/smallbiznis/tirta/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(New),
)

const (
	TypeInvoiceGenerated  = "invoice.generated"
	TypeExecutionFinished = "billing.execution.finished"
)

// Event is the envelope written to the topic.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type InvoiceGenerated struct {
	InvoiceID   string    `json:"invoice_id"`
	Number      string    `json:"number"`
	CustomerID  string    `json:"customer_id"`
	SensorID    string    `json:"sensor_id"`
	ConfigID    string    `json:"config_id"`
	ExecutionID string    `json:"execution_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TotalAmount float64   `json:"total_amount"`
	DueDate     time.Time `json:"due_date"`
}

type ExecutionFinished struct {
	ExecutionID  string `json:"execution_id"`
	ConfigID     string `json:"config_id"`
	ConfigCode   string `json:"config_code"`
	Trigger      string `json:"trigger"`
	Status       string `json:"status"`
	TotalSensors int    `json:"total_sensors"`
	SuccessCount int    `json:"success_count"`
	FailedCount  int    `json:"failed_count"`
}

// NewEvent stamps an id and time on payload. key selects the partition.
func NewEvent(eventType, key string, payload any) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func New(p Params) Publisher {
	log := p.Log.Named("events")
	if len(p.Config.Kafka.Brokers) == 0 {
		log.Info("events.disabled", zap.String("reason", "no kafka brokers configured"))
		return NoOpPublisher{}
	}

	writer := &skafka.Writer{
		Addr:                   skafka.TCP(p.Config.Kafka.Brokers...),
		Topic:                  p.Config.Kafka.Topic,
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	publisher := NewKafkaPublisher(writer, log, p.Metrics)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}

type KafkaPublisher struct {
	writer  Writer
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewKafkaPublisher(writer Writer, log *zap.Logger, metrics *obsmetrics.Metrics) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, log: log, metrics: metrics}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	headers := messageHeaders(ctx)
	msgs := make([]skafka.Message, 0, len(events))
	for _, evt := range events {
		value, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, skafka.Message{
			Key:     []byte(evt.Key),
			Value:   value,
			Headers: append(headers, skafka.Header{Key: "event_type", Value: []byte(evt.Type)}),
			Time:    evt.OccurredAt,
		})
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	status := "published"
	if err != nil {
		status = "failed"
		p.log.Warn("events.publish_failed", zap.Int("count", len(msgs)), zap.Error(err))
	}
	if p.metrics != nil {
		for _, evt := range events {
			p.metrics.RecordEventPublished(ctx, evt.Type, status)
		}
	}
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func messageHeaders(ctx context.Context) []skafka.Header {
	values := correlation.Headers(ctx)
	headers := make([]skafka.Header, 0, len(values)+1)
	for _, key := range []string{correlation.HeaderCorrelationID, correlation.HeaderTraceID, correlation.HeaderSpanID} {
		if v, ok := values[key]; ok {
			headers = append(headers, skafka.Header{Key: key, Value: []byte(v)})
		}
	}
	return headers[:len(headers):len(headers)]
}

// NoOpPublisher discards events when no broker is configured.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, ...Event) error { return nil }
func (NoOpPublisher) Close() error                            { return nil }
