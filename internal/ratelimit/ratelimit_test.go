package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/tirta/internal/config"
)

func TestNilLockerIsNotConfigured(t *testing.T) {
	var locker *Locker
	if _, _, err := locker.TryLock(context.Background(), "k", time.Second); !errors.Is(err, ErrLockNotConfigured) {
		t.Fatalf("expected ErrLockNotConfigured, got %v", err)
	}
	if err := locker.Release(context.Background(), "k", "token"); err != nil {
		t.Fatalf("release on nil locker: %v", err)
	}
	if NewLocker(nil) != nil {
		t.Fatalf("expected nil locker without a client")
	}
}

func TestTriggerLimiterDisabledAllows(t *testing.T) {
	limiter := NewTriggerLimiter(config.Config{}, nil)
	if limiter.Enabled() {
		t.Fatalf("limiter should be disabled without redis")
	}
	res, err := limiter.Allow(context.Background(), "123")
	if err != nil || !res.Allowed {
		t.Fatalf("disabled limiter must allow, got %+v %v", res, err)
	}
}

func TestBucketTTL(t *testing.T) {
	if got := bucketTTL(0.2, 3); got != 30*time.Second {
		t.Fatalf("expected 30s, got %s", got)
	}
	if got := bucketTTL(100, 1); got != time.Second {
		t.Fatalf("expected floor of 1s, got %s", got)
	}
}

func TestScriptValueParsing(t *testing.T) {
	if toFloat("0.75") != 0.75 {
		t.Fatalf("string tokens not parsed")
	}
	if toFloat(int64(2)) != 2 {
		t.Fatalf("integer tokens not parsed")
	}
	if toInt(int64(1)) != 1 || toInt("1") != 1 || toInt(nil) != 0 {
		t.Fatalf("unexpected int parsing")
	}
}
