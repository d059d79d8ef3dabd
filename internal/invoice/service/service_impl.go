package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
	"github.com/smallbiznis/tollgate/pkg/db"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	AggregateSvc aggregatedomain.Service
	TaxSvc       taxdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	numberPrefix string
	dueInDays    int
	invoicerepo  repository.Repository[invoicedomain.Invoice]
	linerepo     repository.Repository[invoicedomain.InvoiceLine]
	aggregateSvc aggregatedomain.Service
	taxSvc       taxdomain.Service

	entropy *ulid.MonotonicEntropy
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:        p.GenID,
		clock:        p.Clock,
		numberPrefix: p.Config.Invoice.NumberPrefix,
		dueInDays:    p.Config.Invoice.DueInDays,
		invoicerepo:  repository.ProvideStore[invoicedomain.Invoice](p.DB),
		linerepo:     repository.ProvideStore[invoicedomain.InvoiceLine](p.DB),
		aggregateSvc: p.AggregateSvc,
		taxSvc:       p.TaxSvc,

		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.Invoice, error) {
	aggregate, items, err := s.aggregateSvc.Get(ctx, strings.TrimSpace(req.AggregateID))
	if err != nil {
		return nil, err
	}
	if aggregate.Status != aggregatedomain.AggregateStatusSealed {
		return nil, invoicedomain.ErrAggregateNotOpen
	}

	// Regeneration path: an invoice already exists for this aggregate.
	existing, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{AggregateID: aggregate.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.Amount
	}

	breakdown, err := s.taxSvc.Compute(ctx, subtotal, req.Jurisdiction)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := &invoicedomain.Invoice{
		ID:           s.genID.Generate(),
		Number:       s.nextNumber(now),
		AccountID:    aggregate.AccountID,
		AggregateID:  aggregate.ID,
		Currency:     aggregate.Currency,
		Jurisdiction: req.Jurisdiction,
		Subtotal:     subtotal,
		TaxCGST:      breakdown.CGST,
		TaxSGST:      breakdown.SGST,
		TaxIGST:      breakdown.IGST,
		TaxTotal:     breakdown.Total,
		Total:        subtotal + breakdown.Total,
		Status:       invoicedomain.InvoiceStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.invoicerepo.WithTrx(tx).Create(ctx, record); err != nil {
			return err
		}
		lines := make([]*invoicedomain.InvoiceLine, 0, len(items))
		for _, item := range items {
			lines = append(lines, &invoicedomain.InvoiceLine{
				ID:            s.genID.Generate(),
				InvoiceID:     record.ID,
				ComponentCode: item.ComponentCode,
				Quantity:      item.Quantity,
				Amount:        item.Amount,
				CreatedAt:     now,
			})
		}
		return s.linerepo.WithTrx(tx).BatchCreate(ctx, lines)
	})
	if err != nil {
		// Concurrent generation for the same aggregate; the winner's
		// document is the invoice.
		if db.IsDuplicateKeyErr(err) {
			return s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{AggregateID: aggregate.ID})
		}
		return nil, err
	}

	return record, nil
}

func (s *Service) Get(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, []*invoicedomain.InvoiceLine, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, nil, invoicedomain.ErrInvalidInvoice
	}

	record, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, invoicedomain.ErrNotFound
	}

	lines, err := s.linerepo.Find(ctx, &invoicedomain.InvoiceLine{InvoiceID: id})
	if err != nil {
		return nil, nil, err
	}
	return record, lines, nil
}

func (s *Service) Issue(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	record, _, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if record.Status != invoicedomain.InvoiceStatusDraft {
		return nil, invoicedomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	dueAt := now.AddDate(0, 0, s.dueInDays)
	if err := s.invoicerepo.Update(ctx, record.ID.String(), map[string]any{
		"status":     invoicedomain.InvoiceStatusPending,
		"issued_at":  now,
		"due_at":     dueAt,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	record.Status = invoicedomain.InvoiceStatusPending
	record.IssuedAt = &now
	record.DueAt = &dueAt
	return record, nil
}

func (s *Service) MarkPaid(ctx context.Context, invoiceID string, at time.Time) (*invoicedomain.Invoice, error) {
	record, _, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case invoicedomain.InvoiceStatusPaid:
		return record, nil
	case invoicedomain.InvoiceStatusPending, invoicedomain.InvoiceStatusOverdue:
	default:
		return nil, invoicedomain.ErrInvalidTransition
	}

	at = at.UTC()
	if err := s.invoicerepo.Update(ctx, record.ID.String(), map[string]any{
		"status":     invoicedomain.InvoiceStatusPaid,
		"paid_at":    at,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	record.Status = invoicedomain.InvoiceStatusPaid
	record.PaidAt = &at
	return record, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	record, _, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusPending:
	default:
		return nil, invoicedomain.ErrInvalidTransition
	}

	if err := s.invoicerepo.Update(ctx, record.ID.String(), map[string]any{
		"status":     invoicedomain.InvoiceStatusCancelled,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	record.Status = invoicedomain.InvoiceStatusCancelled
	return record, nil
}

func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status = ? AND due_at < ?", invoicedomain.InvoiceStatusPending, now.UTC()).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusOverdue,
			"updated_at": s.clock.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("invoices moved to overdue", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// nextNumber formats document numbers as INV-<prefix>-<yyyymm>-<ulid>.
func (s *Service) nextNumber(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy)
	return fmt.Sprintf("INV-%s-%s-%s", s.numberPrefix, now.Format("200601"), id.String())
}
