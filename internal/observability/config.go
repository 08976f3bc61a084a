package observability

import (
	"strings"

	"github.com/smallbiznis/tirta/internal/config"
)

const defaultServiceName = "tirta"

// Config drives the zap logger and the OpenTelemetry tracer and meter
// providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig normalizes the telemetry section of the app config. Export is
// off when no collector endpoint is set, whatever OTEL_ENABLED says.
func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)

	return Config{
		ServiceName:          orDefault(cfg.AppName, defaultServiceName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(orDefault(t.LogLevel, "info")),
		LogFormat:            strings.ToLower(orDefault(t.LogFormat, "json")),
		OtelEnabled:          t.OTLPEnabled && endpoint != "",
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: strings.ToLower(orDefault(t.OTLPProtocol, "grpc")),
		OtelSamplingRatio:    clampRatio(t.SamplingRatio),
	}
}

// Debug switches logs to console output and gin to debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
