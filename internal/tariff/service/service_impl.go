package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tirta/internal/cache"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  tariffdomain.Repository
	Cache cache.TariffCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  tariffdomain.Repository
	genID *snowflake.Node
	cache cache.TariffCache
}

func New(p Params) tariffdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tariff.service"),
		repo:  p.Repo,
		genID: p.GenID,
		cache: p.Cache,
	}
}

func (s *Service) Resolve(ctx context.Context, categoryID snowflake.ID) (*tariffdomain.Tariff, error) {
	if categoryID == 0 {
		return nil, tariffdomain.ErrInvalidCategory
	}
	if s.cache != nil {
		if cached, ok := s.cache.GetActiveTariff(categoryID); ok {
			return cached, nil
		}
	}

	tariff, err := s.repo.FindActiveByCategory(ctx, s.db, categoryID)
	if err != nil {
		return nil, err
	}
	if tariff == nil {
		return nil, tariffdomain.ErrNoActiveTariff
	}

	if s.cache != nil {
		s.cache.SetActiveTariff(categoryID, tariff)
	}
	return tariff, nil
}

func (s *Service) Create(ctx context.Context, req tariffdomain.CreateRequest) (*tariffdomain.Response, error) {
	categoryID, err := tariffdomain.ParseID(strings.TrimSpace(req.CategoryID))
	if err != nil || categoryID == 0 {
		return nil, tariffdomain.ErrInvalidCategory
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tariffdomain.ErrInvalidName
	}
	if req.WaterCharge < 0 || req.SewerageCharge < 0 || req.FixedCharge < 0 {
		return nil, tariffdomain.ErrInvalidCharge
	}
	if req.MaxConsumption != nil && *req.MaxConsumption < req.MinConsumption {
		return nil, tariffdomain.ErrInvalidCharge
	}

	category, err := s.repo.FindCategoryByID(ctx, s.db, categoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, tariffdomain.ErrInvalidCategory
	}

	now := time.Now().UTC()
	t := &tariffdomain.Tariff{
		ID:             s.genID.Generate(),
		CategoryID:     categoryID,
		Name:           name,
		MinConsumption: req.MinConsumption,
		MaxConsumption: req.MaxConsumption,
		WaterCharge:    req.WaterCharge,
		SewerageCharge: req.SewerageCharge,
		FixedCharge:    req.FixedCharge,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, t); err != nil {
			return err
		}
		if !req.Active {
			return nil
		}
		return s.activateTx(ctx, tx, t, now)
	})
	if err != nil {
		return nil, err
	}
	if req.Active {
		s.invalidate(categoryID)
	}

	return toResponse(t), nil
}

func (s *Service) List(ctx context.Context, categoryID string) ([]tariffdomain.Response, error) {
	id, err := tariffdomain.ParseID(strings.TrimSpace(categoryID))
	if err != nil || id == 0 {
		return nil, tariffdomain.ErrInvalidCategory
	}

	items, err := s.repo.ListByCategory(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	resp := make([]tariffdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Activate(ctx context.Context, id string) (*tariffdomain.Response, error) {
	tariffID, err := tariffdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, tariffdomain.ErrInvalidID
	}

	var activated *tariffdomain.Tariff
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, tariffID)
		if err != nil {
			return err
		}
		if item == nil {
			return tariffdomain.ErrNotFound
		}
		if err := s.activateTx(ctx, tx, item, time.Now().UTC()); err != nil {
			return err
		}
		activated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(activated.CategoryID)
	s.log.Info("tariff.activated",
		zap.String("tariff_id", activated.ID.String()),
		zap.String("category_id", activated.CategoryID.String()),
	)
	return toResponse(activated), nil
}

// activateTx deactivates the rest of the category, then flips t on.
func (s *Service) activateTx(ctx context.Context, tx *gorm.DB, t *tariffdomain.Tariff, now time.Time) error {
	if err := s.repo.DeactivateCategory(ctx, tx, t.CategoryID, t.ID, now); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, tx, t.ID, true, now); err != nil {
		return err
	}
	t.IsActive = true
	t.UpdatedAt = now
	return nil
}

func (s *Service) invalidate(categoryID snowflake.ID) {
	if s.cache != nil {
		s.cache.InvalidateCategory(categoryID)
	}
}

func toResponse(t *tariffdomain.Tariff) *tariffdomain.Response {
	return &tariffdomain.Response{
		ID:             t.ID.String(),
		CategoryID:     t.CategoryID.String(),
		Name:           t.Name,
		MinConsumption: t.MinConsumption,
		MaxConsumption: t.MaxConsumption,
		WaterCharge:    t.WaterCharge,
		SewerageCharge: t.SewerageCharge,
		FixedCharge:    t.FixedCharge,
		Active:         t.IsActive,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
