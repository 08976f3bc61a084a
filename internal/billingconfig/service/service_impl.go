package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/config"
	"github.com/smallbiznis/tirta/internal/recurrence"
	"github.com/smallbiznis/tirta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   billingconfigdomain.Repository
	Clock  clock.Clock
	Engine *config.EngineConfigHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   billingconfigdomain.Repository
	clock  clock.Clock
	engine *config.EngineConfigHolder
}

func New(p Params) billingconfigdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("billingconfig.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		clock:  p.Clock,
		engine: p.Engine,
	}
}

func (s *Service) Create(ctx context.Context, req billingconfigdomain.CreateRequest) (*billingconfigdomain.BillingConfig, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, billingconfigdomain.ErrInvalidName
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" {
		return nil, billingconfigdomain.ErrInvalidCode
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = s.engine.Get().DefaultTimezone
	}

	now := s.clock.Now().UTC()
	cfg := &billingconfigdomain.BillingConfig{
		ID:              s.genID.Generate(),
		Name:            name,
		Code:            code,
		Description:     strings.TrimSpace(req.Description),
		IsActive:        boolOr(req.IsActive, true),
		BillingCycle:    billingconfigdomain.Cycle(strings.ToUpper(strings.TrimSpace(req.BillingCycle))),
		BillingDay:      req.BillingDay,
		BillingHour:     req.BillingHour,
		BillingMinute:   req.BillingMinute,
		Timezone:        timezone,
		IncludeWeekends: boolOr(req.IncludeWeekends, true),
		RetryOnFailure:  req.RetryOnFailure,
		MaxRetries:      req.MaxRetries,
		NotifyOnSuccess: req.NotifyOnSuccess,
		NotifyOnError:   boolOr(req.NotifyOnError, true),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := applyLists(cfg, &req.TariffCategories, &req.SensorStatuses, &req.NotifyEmails); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if err := s.recomputeNextRun(cfg, now); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, billingconfigdomain.ErrCodeExists
	}

	if err := s.repo.Insert(ctx, s.db, cfg); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, billingconfigdomain.ErrCodeExists
		}
		return nil, err
	}

	s.log.Info("billing_config.created",
		zap.String("config_id", cfg.ID.String()),
		zap.String("config_code", cfg.Code),
		zap.Timep("next_run", cfg.NextRun),
	)
	return cfg, nil
}

func (s *Service) List(ctx context.Context) ([]billingconfigdomain.BillingConfig, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []billingconfigdomain.BillingConfig{}
	}
	return items, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*billingconfigdomain.BillingConfig, error) {
	configID, err := billingconfigdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, billingconfigdomain.ErrInvalidID
	}
	cfg, err := s.repo.FindByID(ctx, s.db, configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, billingconfigdomain.ErrNotFound
	}
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, req billingconfigdomain.UpdateRequest) (*billingconfigdomain.BillingConfig, error) {
	cfg, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		cfg.Name = strings.TrimSpace(*req.Name)
		if cfg.Name == "" {
			return nil, billingconfigdomain.ErrInvalidName
		}
	}
	if req.Description != nil {
		cfg.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	if req.BillingCycle != nil {
		cfg.BillingCycle = billingconfigdomain.Cycle(strings.ToUpper(strings.TrimSpace(*req.BillingCycle)))
	}
	if req.BillingDay != nil {
		cfg.BillingDay = *req.BillingDay
	}
	if req.BillingHour != nil {
		cfg.BillingHour = *req.BillingHour
	}
	if req.BillingMinute != nil {
		cfg.BillingMinute = *req.BillingMinute
	}
	if req.Timezone != nil {
		cfg.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.IncludeWeekends != nil {
		cfg.IncludeWeekends = *req.IncludeWeekends
	}
	if req.RetryOnFailure != nil {
		cfg.RetryOnFailure = *req.RetryOnFailure
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.NotifyOnSuccess != nil {
		cfg.NotifyOnSuccess = *req.NotifyOnSuccess
	}
	if req.NotifyOnError != nil {
		cfg.NotifyOnError = *req.NotifyOnError
	}
	if err := applyLists(cfg, req.TariffCategories, req.SensorStatuses, req.NotifyEmails); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.recomputeNextRun(cfg, now); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, cfg); err != nil {
		return nil, err
	}

	s.log.Info("billing_config.updated",
		zap.String("config_id", cfg.ID.String()),
		zap.Bool("is_active", cfg.IsActive),
		zap.Timep("next_run", cfg.NextRun),
	)
	return cfg, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	configID, err := billingconfigdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return billingconfigdomain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, configID)
	if err != nil {
		return err
	}
	if !deleted {
		return billingconfigdomain.ErrNotFound
	}
	s.log.Info("billing_config.deleted", zap.String("config_id", configID.String()))
	return nil
}

func (s *Service) recomputeNextRun(cfg *billingconfigdomain.BillingConfig, now time.Time) error {
	next, err := recurrence.NextForConfig(*cfg, now)
	if err != nil {
		return billingconfigdomain.ErrInvalidTimezone
	}
	next = next.UTC()
	cfg.NextRun = &next
	return nil
}

func applyLists(cfg *billingconfigdomain.BillingConfig, categories, statuses, emails *[]string) error {
	if categories != nil {
		ids := make([]snowflake.ID, 0, len(*categories))
		for _, raw := range *categories {
			id, err := snowflake.ParseString(strings.TrimSpace(raw))
			if err != nil || id == 0 {
				return billingconfigdomain.ErrInvalidCategory
			}
			ids = append(ids, id)
		}
		cfg.TariffCategories = billingconfigdomain.EncodeList(ids)
	}
	if statuses != nil {
		values := make([]string, 0, len(*statuses))
		for _, raw := range *statuses {
			status := strings.ToUpper(strings.TrimSpace(raw))
			if status == "" {
				return billingconfigdomain.ErrInvalidStatus
			}
			values = append(values, status)
		}
		cfg.SensorStatuses = billingconfigdomain.EncodeList(values)
	}
	if emails != nil {
		values := make([]string, 0, len(*emails))
		for _, raw := range *emails {
			email, err := normalizeEmail(raw)
			if err != nil {
				return billingconfigdomain.ErrInvalidEmail
			}
			values = append(values, email)
		}
		cfg.NotifyEmails = billingconfigdomain.EncodeList(values)
	}

	if len(cfg.TariffCategories) == 0 {
		cfg.TariffCategories = billingconfigdomain.EncodeList[snowflake.ID](nil)
	}
	if len(cfg.SensorStatuses) == 0 {
		cfg.SensorStatuses = billingconfigdomain.EncodeList[string](nil)
	}
	if len(cfg.NotifyEmails) == 0 {
		cfg.NotifyEmails = billingconfigdomain.EncodeList[string](nil)
	}
	return nil
}

func validate(cfg *billingconfigdomain.BillingConfig) error {
	if !cfg.BillingCycle.Valid() {
		return billingconfigdomain.ErrInvalidCycle
	}
	if cfg.BillingCycle == billingconfigdomain.CycleWeekly {
		if cfg.BillingDay < 0 || cfg.BillingDay > 6 {
			return billingconfigdomain.ErrInvalidDay
		}
	} else if cfg.BillingCycle != billingconfigdomain.CycleDaily {
		if cfg.BillingDay < 1 || cfg.BillingDay > 31 {
			return billingconfigdomain.ErrInvalidDay
		}
	}
	if cfg.BillingHour < 0 || cfg.BillingHour > 23 {
		return billingconfigdomain.ErrInvalidHour
	}
	if cfg.BillingMinute < 0 || cfg.BillingMinute > 59 {
		return billingconfigdomain.ErrInvalidMinute
	}
	if cfg.Timezone == "" {
		return billingconfigdomain.ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return billingconfigdomain.ErrInvalidTimezone
	}
	if cfg.MaxRetries < 0 {
		return billingconfigdomain.ErrInvalidMaxRetries
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
