package cloudmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/tirta/internal/config"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	exporterRemoteWrite = "prometheus_remote_write"
	exporterPushgateway = "prometheus_pushgateway"

	defaultPushTimeout = 5 * time.Second
)

var errNoEndpoint = errors.New("METRICS_PUSH_ENDPOINT is required")

// Pusher delivers the billing run gauges somewhere a dashboard can read
// them. The billing process has no scrape target between runs.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher picks the exporter named by METRICS_PUSH_EXPORTER. It returns nil
// when pushing is off or misconfigured; billing never depends on it.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m.Exporter == "" {
		return nil
	}

	p, err := buildPusher(m.Exporter, m.Endpoint, m.AuthToken, cfg)
	if err != nil {
		logger.Warn("cloudmetrics.push_disabled",
			zap.String("exporter", m.Exporter),
			zap.Error(err),
		)
		return nil
	}
	return p
}

func buildPusher(exporter, endpoint, token string, cfg config.Config) (Pusher, error) {
	exporter = strings.ToLower(strings.TrimSpace(exporter))
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errNoEndpoint
	}

	switch exporter {
	case exporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("METRICS_PUSH_ENDPOINT: %w", err)
		}
		return NewRemoteWritePusher(endpoint, token), nil
	case exporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": cfg.Environment,
		}), nil
	}
	return nil, fmt.Errorf("unknown exporter %q", exporter)
}

// RemoteWritePusher posts snappy-framed prompb write requests.
type RemoteWritePusher struct {
	endpoint  string
	authToken string
	client    *http.Client
	now       func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		client:    &http.Client{Timeout: defaultPushTimeout},
		now:       time.Now,
	}
}

// Push stamps every counter and gauge with one timestamp. Histograms and
// summaries are not sent; the run gauges never use them.
func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	series := toTimeSeries(families, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}
	raw, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return fmt.Errorf("marshal write request: %w", err)
	}
	return p.post(ctx, snappy.Encode(nil, raw))
}

func (p *RemoteWritePusher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write to %s: %s", p.endpoint, resp.Status)
	}
	return nil
}

func toTimeSeries(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, family := range families {
		for _, m := range family.GetMetric() {
			v, ok := sampleValue(family.GetType(), m)
			if !ok {
				continue
			}
			out = append(out, prompb.TimeSeries{
				Labels:  seriesLabels(family.GetName(), m.GetLabel()),
				Samples: []prompb.Sample{{Value: v, Timestamp: ts}},
			})
		}
	}
	return out
}

func sampleValue(kind dto.MetricType, m *dto.Metric) (float64, bool) {
	switch {
	case m == nil:
		return 0, false
	case kind == dto.MetricType_COUNTER && m.GetCounter() != nil:
		return m.GetCounter().GetValue(), true
	case kind == dto.MetricType_GAUGE && m.GetGauge() != nil:
		return m.GetGauge().GetValue(), true
	}
	return 0, false
}

// seriesLabels puts __name__ first, then the metric labels sorted by name.
func seriesLabels(name string, pairs []*dto.LabelPair) []prompb.Label {
	labels := make([]prompb.Label, 0, len(pairs)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for _, pair := range pairs {
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}
	slices.SortFunc(labels, func(a, b prompb.Label) int {
		return strings.Compare(a.Name, b.Name)
	})
	return labels
}

// PushgatewayPusher replaces the job group on a Pushgateway on every push.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping [][2]string
}

// NewPushgatewayPusher drops grouping pairs with an empty key or value.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	p := &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
	}
	for k, v := range grouping {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			p.grouping = append(p.grouping, [2]string{k, v})
		}
	}
	slices.SortFunc(p.grouping, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	return p
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	switch {
	case p.endpoint == "":
		return errNoEndpoint
	case p.job == "":
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for _, kv := range p.grouping {
		pusher = pusher.Grouping(kv[0], kv[1])
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return pusher.PushContext(ctx)
}
