package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/tirta/internal/config"
)

const keyManualTrigger = "trigger:config:%s"

// TriggerLimiter throttles manual executions per billing config.
type TriggerLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewTriggerLimiter(cfg config.Config, bucket *TokenBucket) *TriggerLimiter {
	if bucket == nil || cfg.Redis.TriggerRate <= 0 || cfg.Redis.TriggerBurst <= 0 {
		return nil
	}
	return &TriggerLimiter{
		bucket: bucket,
		rate:   cfg.Redis.TriggerRate,
		burst:  cfg.Redis.TriggerBurst,
	}
}

func (l *TriggerLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow always admits the request when the limiter is disabled.
func (l *TriggerLimiter) Allow(ctx context.Context, configID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyManualTrigger, strings.TrimSpace(configID)), l.rate, l.burst)
}
