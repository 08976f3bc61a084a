package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tirta/pkg/db/pagination"
)

type Service interface {
	ListByConfig(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByID(ctx context.Context, id string) (*Execution, error)
}

type ListRequest struct {
	ConfigID string `json:"config_id"`
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Executions []Execution `json:"executions"`
}

var (
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidID        = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
