package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tirta/internal/config"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	"github.com/smallbiznis/tirta/internal/invoice/format"
	"github.com/smallbiznis/tirta/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   invoicedomain.Repository
	Engine *config.EngineConfigHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   invoicedomain.Repository
	engine *config.EngineConfigHolder

	sequenceMu    sync.Mutex
	sequenceReady bool
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("invoice.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		engine: p.Engine,
	}
}

func (s *Service) CreateInTx(ctx context.Context, tx *gorm.DB, draft invoicedomain.Draft) (*invoicedomain.Invoice, error) {
	cfg := s.engine.Get()
	seq, err := s.repo.NextSequence(ctx, tx, invoicedomain.SequenceInvoice)
	if err != nil {
		return nil, fmt.Errorf("reserve invoice number: %w", err)
	}

	issuedAt := draft.IssuedAt.UTC()
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}
	number, err := format.FormatInvoiceNumber(cfg.InvoiceNumberTemplate(), issuedAt, seq)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(draft.Metadata)
	if err != nil {
		return nil, err
	}

	inv := &invoicedomain.Invoice{
		ID:                s.genID.Generate(),
		Number:            number,
		CustomerID:        draft.CustomerID,
		SensorID:          draft.SensorID,
		TariffID:          draft.TariffID,
		ConfigID:          draft.ConfigID,
		ExecutionID:       draft.ExecutionID,
		PeriodStart:       draft.PeriodStart.UTC(),
		PeriodEnd:         draft.PeriodEnd.UTC(),
		ConsumptionM3:     draft.ConsumptionM3,
		WaterCharge:       draft.WaterCharge,
		SewerageCharge:    draft.SewerageCharge,
		FixedCharge:       draft.FixedCharge,
		Taxes:             draft.Taxes,
		AdditionalCharges: draft.AdditionalCharges,
		Discounts:         draft.Discounts,
		TotalAmount:       draft.TotalAmount,
		AmountDue:         draft.TotalAmount,
		Status:            invoicedomain.InvoiceStatusPending,
		DueDate:           issuedAt.AddDate(0, 0, cfg.InvoiceDueDays),
		Metadata:          datatypes.JSON(metadata),
		CreatedAt:         issuedAt,
		UpdatedAt:         issuedAt,
	}

	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, invoicedomain.ErrInvoiceExists
		}
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := invoicedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ListByExecution(ctx context.Context, executionID string) ([]invoicedomain.Invoice, error) {
	id, err := invoicedomain.ParseID(strings.TrimSpace(executionID))
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	return s.repo.ListByExecution(ctx, s.db, id)
}

// EnsureSequence must run outside any device transaction so a duplicate
// insert never aborts a postgres transaction. Once it succeeds later calls
// are free; a failure is retried on the next call.
func (s *Service) EnsureSequence(ctx context.Context) error {
	s.sequenceMu.Lock()
	defer s.sequenceMu.Unlock()

	if s.sequenceReady {
		return nil
	}
	if err := s.repo.EnsureSequence(ctx, s.db, invoicedomain.SequenceInvoice); err != nil {
		s.log.Error("invoice.sequence.ensure_failed", zap.Error(err))
		return err
	}
	s.sequenceReady = true
	return nil
}
