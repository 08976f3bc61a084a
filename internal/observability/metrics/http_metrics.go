package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics exposes Prometheus request metrics for the API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers request metrics on the default registerer.
func NewHTTPMetrics(cfg Config) (*HTTPMetrics, error) {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer, cfg Config) (*HTTPMetrics, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "tirta"
	}
	constLabels := prometheus.Labels{"service": service}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tirta_api_requests_total",
		Help:        "Counts API requests by method, route, and status.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tirta_api_duration_seconds",
		Help:        "API request latency per method and route.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route"})

	var err error
	if requests, err = registerCounterVec(registerer, requests); err != nil {
		return nil, err
	}
	if duration, err = registerHistogramVec(registerer, duration); err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// ObserveRequest records an API request and its latency.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	methodLabel := normalizeLabel(method)
	routeLabel := strings.TrimSpace(route)
	if routeLabel == "" {
		routeLabel = "unknown"
	}
	m.requests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(methodLabel, routeLabel).Observe(elapsed.Seconds())
}

// GinMiddleware records every request handled by the engine.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func registerCounterVec(registerer prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(registerer prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := registerer.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return h, nil
}
