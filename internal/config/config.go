package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewEngineConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Telemetry TelemetryConfig
	Redis     RedisConfig
	Email     EmailConfig
	Kafka     KafkaConfig
	Metrics   MetricsPushConfig
	Scheduler SchedulerConfig
}

// SchedulerConfig lets API-only replicas run without arming timers.
type SchedulerConfig struct {
	Enabled bool
	// RecoveryThreshold is how long an execution may stay RUNNING before
	// startup recovery marks it FAILED.
	RecoveryThreshold time.Duration
}

// TelemetryConfig is the raw logging and OpenTelemetry env. The
// observability package normalizes it.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEnabled   bool
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	TriggerRate  float64
	TriggerBurst int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "tirta"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tirta"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			OTLPEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Redis: RedisConfig{
			Addr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:     strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:           getenvInt("REDIS_DB", 0),
			TriggerRate:  getenvFloat("TRIGGER_RATE_PER_SECOND", 0.2),
			TriggerBurst: getenvInt("TRIGGER_BURST", 3),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@tirta.local"),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_BILLING_TOPIC", "billing.events"),
		},
		Metrics: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getenvBool("SCHEDULER_ENABLED", true),
			RecoveryThreshold: getenvDuration("SCHEDULER_RECOVERY_THRESHOLD", time.Hour),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
