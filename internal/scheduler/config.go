package scheduler

import (
	"time"

	"github.com/smallbiznis/tirta/internal/config"
)

// Config controls the scheduler process behaviour.
type Config struct {
	Enabled           bool
	RecoveryThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RecoveryThreshold: time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:           cfg.Scheduler.Enabled,
		RecoveryThreshold: cfg.Scheduler.RecoveryThreshold,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	return c
}
