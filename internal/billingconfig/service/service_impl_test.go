package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	"github.com/smallbiznis/tirta/internal/billingconfig/repository"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/config"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupConfigService(t *testing.T, now time.Time) billingconfigdomain.Service {
	t.Helper()
	return New(Params{
		DB:     dbtest.Open(t),
		Log:    zap.NewNop(),
		GenID:  dbtest.MustNode(t),
		Repo:   repository.Provide(),
		Clock:  clock.NewFakeClock(now),
		Engine: config.NewStaticEngineConfigHolder(config.DefaultEngineConfig()),
	})
}

func monthlyRequest(name string) billingconfigdomain.CreateRequest {
	includeWeekends := false
	return billingconfigdomain.CreateRequest{
		Name:             name,
		BillingCycle:     "monthly",
		BillingDay:       1,
		BillingHour:      6,
		Timezone:         "UTC",
		IncludeWeekends:  &includeWeekends,
		TariffCategories: []string{"100", "200"},
		SensorStatuses:   []string{"active"},
		NotifyEmails:     []string{"Ops <ops@example.com>"},
	}
}

func TestCreateComputesCodeAndNextRun(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))

	cfg, err := svc.Create(context.Background(), monthlyRequest("Lima Norte Monthly"))
	require.NoError(t, err)

	assert.Equal(t, "lima-norte-monthly", cfg.Code)
	assert.Equal(t, billingconfigdomain.CycleMonthly, cfg.BillingCycle)
	assert.True(t, cfg.IsActive)
	assert.True(t, cfg.NotifyOnError)
	require.NotNil(t, cfg.NextRun)
	// June 1st 2025 is a Sunday.
	assert.True(t, cfg.NextRun.Equal(time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)), "next run %s", cfg.NextRun)
	assert.Equal(t, []snowflake.ID{100, 200}, cfg.CategoryIDs())
	assert.Equal(t, []string{"ACTIVE"}, cfg.Statuses())
	assert.Equal(t, []string{"ops@example.com"}, cfg.Emails())

	loaded, err := svc.GetByID(context.Background(), cfg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, cfg.Code, loaded.Code)
	assert.Equal(t, cfg.CategoryIDs(), loaded.CategoryIDs())
	require.NotNil(t, loaded.NextRun)
	assert.True(t, loaded.NextRun.Equal(*cfg.NextRun))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))

	_, err := svc.Create(context.Background(), monthlyRequest("Daily Run"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), monthlyRequest("daily run"))
	require.ErrorIs(t, err, billingconfigdomain.ErrCodeExists)
}

func TestCreateValidation(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		mutate func(*billingconfigdomain.CreateRequest)
		want   error
	}{
		{"empty name", func(r *billingconfigdomain.CreateRequest) { r.Name = " " }, billingconfigdomain.ErrInvalidName},
		{"unknown cycle", func(r *billingconfigdomain.CreateRequest) { r.BillingCycle = "HOURLY" }, billingconfigdomain.ErrInvalidCycle},
		{"weekly day out of range", func(r *billingconfigdomain.CreateRequest) {
			r.BillingCycle = "WEEKLY"
			r.BillingDay = 7
		}, billingconfigdomain.ErrInvalidDay},
		{"monthly day zero", func(r *billingconfigdomain.CreateRequest) { r.BillingDay = 0 }, billingconfigdomain.ErrInvalidDay},
		{"hour", func(r *billingconfigdomain.CreateRequest) { r.BillingHour = 24 }, billingconfigdomain.ErrInvalidHour},
		{"minute", func(r *billingconfigdomain.CreateRequest) { r.BillingMinute = 60 }, billingconfigdomain.ErrInvalidMinute},
		{"timezone", func(r *billingconfigdomain.CreateRequest) { r.Timezone = "Nowhere/City" }, billingconfigdomain.ErrInvalidTimezone},
		{"category", func(r *billingconfigdomain.CreateRequest) { r.TariffCategories = []string{"abc"} }, billingconfigdomain.ErrInvalidCategory},
		{"email", func(r *billingconfigdomain.CreateRequest) { r.NotifyEmails = []string{"not-an-email"} }, billingconfigdomain.ErrInvalidEmail},
		{"retries", func(r *billingconfigdomain.CreateRequest) { r.MaxRetries = -1 }, billingconfigdomain.ErrInvalidMaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := monthlyRequest("Validation " + tt.name)
			tt.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateDefaultsTimezone(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))

	req := monthlyRequest("Default Zone")
	req.Timezone = ""
	cfg, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "America/Lima", cfg.Timezone)
}

func TestUpdateRecomputesNextRun(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	cfg, err := svc.Create(ctx, monthlyRequest("Editable"))
	require.NoError(t, err)

	cycle := "DAILY"
	hour := 23
	active := false
	updated, err := svc.Update(ctx, billingconfigdomain.UpdateRequest{
		ID:           cfg.ID.String(),
		BillingCycle: &cycle,
		BillingHour:  &hour,
		IsActive:     &active,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	require.NotNil(t, updated.NextRun)
	assert.True(t, updated.NextRun.Equal(time.Date(2025, 5, 20, 23, 0, 0, 0, time.UTC)), "next run %s", updated.NextRun)

	loaded, err := svc.GetByID(ctx, cfg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, billingconfigdomain.CycleDaily, loaded.BillingCycle)
	assert.False(t, loaded.IsActive)
	assert.Equal(t, []string{"ops@example.com"}, loaded.Emails())
}

func TestDelete(t *testing.T) {
	svc := setupConfigService(t, time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	cfg, err := svc.Create(ctx, monthlyRequest("Disposable"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, cfg.ID.String()))
	require.ErrorIs(t, svc.Delete(ctx, cfg.ID.String()), billingconfigdomain.ErrNotFound)
	_, err = svc.GetByID(ctx, cfg.ID.String())
	require.ErrorIs(t, err, billingconfigdomain.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "nope"), billingconfigdomain.ErrInvalidID)
}
