package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	executiondomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"github.com/smallbiznis/tirta/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo executiondomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo executiondomain.Repository
}

func New(p Params) executiondomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("billingexecution.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListByConfig(ctx context.Context, req executiondomain.ListRequest) (executiondomain.ListResponse, error) {
	configID, err := executiondomain.ParseID(strings.TrimSpace(req.ConfigID))
	if err != nil || configID == 0 {
		return executiondomain.ListResponse{}, executiondomain.ErrInvalidConfig
	}

	var cursor *executiondomain.Cursor
	decoded, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return executiondomain.ListResponse{}, executiondomain.ErrInvalidPageToken
	}
	if decoded != nil {
		startedAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return executiondomain.ListResponse{}, executiondomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return executiondomain.ListResponse{}, executiondomain.ErrInvalidPageToken
		}
		cursor = &executiondomain.Cursor{ID: id, StartedAt: startedAt}
	}

	limit := req.Limit()
	items, err := s.repo.ListByConfig(ctx, s.db, executiondomain.ListFilter{
		ConfigID: configID,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return executiondomain.ListResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(item *executiondomain.Execution) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.StartedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	if err != nil {
		return executiondomain.ListResponse{}, err
	}

	executions := make([]executiondomain.Execution, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		executions = append(executions, *item)
	}

	return executiondomain.ListResponse{
		PageInfo:   *info,
		Executions: executions,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*executiondomain.Execution, error) {
	executionID, err := executiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, executiondomain.ErrInvalidID
	}
	exec, err := s.repo.FindByID(ctx, s.db, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, executiondomain.ErrNotFound
	}
	return exec, nil
}
