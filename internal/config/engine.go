package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig carries billing engine tunables that operators may change
// without a restart.
type EngineConfig struct {
	ErrorsCap           int           `mapstructure:"errorsCap"`
	InvoiceDueDays      int           `mapstructure:"invoiceDueDays"`
	InvoicePrefix       string        `mapstructure:"invoicePrefix"`
	InvoiceDigits       int           `mapstructure:"invoiceDigits"`
	DefaultTimezone     string        `mapstructure:"defaultTimezone"`
	ExecutionTimeout    time.Duration `mapstructure:"executionTimeout"`
	NotificationSubject string        `mapstructure:"notificationSubject"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ErrorsCap:           100,
		InvoiceDueDays:      15,
		InvoicePrefix:       "FAC",
		InvoiceDigits:       6,
		DefaultTimezone:     "America/Lima",
		ExecutionTimeout:    30 * time.Minute,
		NotificationSubject: "Billing execution summary",
	}
}

// InvoiceNumberTemplate renders the numbering template, e.g. FAC-{SEQ6}.
func (c EngineConfig) InvoiceNumberTemplate() string {
	prefix := strings.TrimSpace(c.InvoicePrefix)
	digits := c.InvoiceDigits
	if digits <= 0 {
		digits = 6
	}
	if prefix == "" {
		return fmt.Sprintf("{SEQ%d}", digits)
	}
	return fmt.Sprintf("%s-{SEQ%d}", prefix, digits)
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewEngineConfigHolder loads billing.yml from the standard locations and
// watches it for changes.
func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tirta/config")
	v.AddConfigPath("/etc/tirta")
	v.AddConfigPath(".")

	return newEngineConfigHolder(v, true)
}

// NewEngineConfigHolderFromFile loads a specific file without watching it.
func NewEngineConfigHolderFromFile(path string) (*EngineConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newEngineConfigHolder(v, false)
}

// NewStaticEngineConfigHolder wraps a fixed config.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func newEngineConfigHolder(v *viper.Viper, watch bool) (*EngineConfigHolder, error) {
	v.SetEnvPrefix("TIRTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("billing.errorsCap", defaults.ErrorsCap)
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)
	v.SetDefault("billing.invoiceDigits", defaults.InvoiceDigits)
	v.SetDefault("billing.defaultTimezone", defaults.DefaultTimezone)
	v.SetDefault("billing.executionTimeout", defaults.ExecutionTimeout)
	v.SetDefault("billing.notificationSubject", defaults.NotificationSubject)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg.withDefaults())

	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated.withDefaults())
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	cfg, ok := h.current.Load().(EngineConfig)
	if !ok {
		return DefaultEngineConfig()
	}
	return cfg
}

func (c EngineConfig) withDefaults() EngineConfig {
	defaults := DefaultEngineConfig()
	if c.ErrorsCap <= 0 {
		c.ErrorsCap = defaults.ErrorsCap
	}
	if c.InvoiceDueDays <= 0 {
		c.InvoiceDueDays = defaults.InvoiceDueDays
	}
	if strings.TrimSpace(c.InvoicePrefix) == "" {
		c.InvoicePrefix = defaults.InvoicePrefix
	}
	if c.InvoiceDigits <= 0 {
		c.InvoiceDigits = defaults.InvoiceDigits
	}
	if strings.TrimSpace(c.DefaultTimezone) == "" {
		c.DefaultTimezone = defaults.DefaultTimezone
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = defaults.ExecutionTimeout
	}
	if strings.TrimSpace(c.NotificationSubject) == "" {
		c.NotificationSubject = defaults.NotificationSubject
	}
	return c
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.ErrorsCap < 0 {
		return errors.New("billing.errorsCap cannot be negative")
	}
	if cfg.InvoiceDueDays < 0 {
		return errors.New("billing.invoiceDueDays cannot be negative")
	}
	if tz := strings.TrimSpace(cfg.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.New("billing.defaultTimezone is not a valid IANA zone")
		}
	}
	return nil
}
