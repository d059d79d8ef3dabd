package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	"github.com/smallbiznis/tollgate/pkg/db"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID         *snowflake.Node
	clock         clock.Clock
	aggregaterepo repository.Repository[aggregatedomain.UsageAggregate]
	itemrepo      repository.Repository[aggregatedomain.AggregateItem]
}

func NewService(p ServiceParam) aggregatedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("aggregate.service"),

		genID:         p.GenID,
		clock:         p.Clock,
		aggregaterepo: repository.ProvideStore[aggregatedomain.UsageAggregate](p.DB),
		itemrepo:      repository.ProvideStore[aggregatedomain.AggregateItem](p.DB),
	}
}

func (s *Service) Add(ctx context.Context, charge *ratingdomain.RatedCharge) error {
	if charge == nil || charge.AccountID == 0 {
		return aggregatedomain.ErrInvalidAccount
	}

	// Bucketing follows the event's occurrence time, not when rating ran.
	// A late-rated event joins the cycle it happened in, or hits the
	// sealed-cycle guard below.
	cycleStart, cycleEnd := cycleBounds(charge.OccurredAt)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		aggregate, err := s.ensureOpenAggregate(ctx, tx, charge.AccountID, charge.Currency, cycleStart, cycleEnd)
		if err != nil {
			return err
		}

		item, err := s.itemrepo.WithTrx(tx).FindOne(ctx, &aggregatedomain.AggregateItem{
			AggregateID:   aggregate.ID,
			ComponentCode: charge.ComponentCode,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if item == nil {
			return s.itemrepo.WithTrx(tx).Create(ctx, &aggregatedomain.AggregateItem{
				ID:            s.genID.Generate(),
				AggregateID:   aggregate.ID,
				ComponentCode: charge.ComponentCode,
				Kind:          charge.Kind,
				Quantity:      charge.Quantity,
				Amount:        charge.Amount,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}

		return tx.Model(&aggregatedomain.AggregateItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"quantity":   gorm.Expr("quantity + ?", charge.Quantity),
				"amount":     gorm.Expr("amount + ?", charge.Amount),
				"updated_at": now,
			}).Error
	})
}

func (s *Service) CloseCycle(ctx context.Context, accountID string, at time.Time) (*aggregatedomain.UsageAggregate, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil || id == 0 {
		return nil, aggregatedomain.ErrInvalidAccount
	}

	cycleStart, _ := cycleBounds(at)
	aggregate, err := s.aggregaterepo.FindOne(ctx, &aggregatedomain.UsageAggregate{
		AccountID:  id,
		CycleStart: cycleStart,
	})
	if err != nil {
		return nil, err
	}
	if aggregate == nil {
		return nil, aggregatedomain.ErrNotFound
	}
	if aggregate.Status == aggregatedomain.AggregateStatusSealed {
		return aggregate, nil
	}

	sealedAt := s.clock.Now()
	if err := s.aggregaterepo.Update(ctx, aggregate.ID.String(), map[string]any{
		"status":     aggregatedomain.AggregateStatusSealed,
		"sealed_at":  sealedAt,
		"updated_at": sealedAt,
	}); err != nil {
		return nil, err
	}

	aggregate.Status = aggregatedomain.AggregateStatusSealed
	aggregate.SealedAt = &sealedAt
	return aggregate, nil
}

func (s *Service) Get(ctx context.Context, aggregateID string) (*aggregatedomain.UsageAggregate, []*aggregatedomain.AggregateItem, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(aggregateID))
	if err != nil || id == 0 {
		return nil, nil, aggregatedomain.ErrNotFound
	}

	aggregate, err := s.aggregaterepo.FindOne(ctx, &aggregatedomain.UsageAggregate{ID: id})
	if err != nil {
		return nil, nil, err
	}
	if aggregate == nil {
		return nil, nil, aggregatedomain.ErrNotFound
	}

	items, err := s.itemrepo.Find(ctx, &aggregatedomain.AggregateItem{AggregateID: id})
	if err != nil {
		return nil, nil, err
	}
	return aggregate, items, nil
}

func (s *Service) ensureOpenAggregate(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, currency string, cycleStart, cycleEnd time.Time) (*aggregatedomain.UsageAggregate, error) {
	existing, err := s.aggregaterepo.WithTrx(tx).FindOne(ctx, &aggregatedomain.UsageAggregate{
		AccountID:  accountID,
		CycleStart: cycleStart,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == aggregatedomain.AggregateStatusSealed {
			// Late charge after sealing. The caller parks the event for
			// manual adjustment instead of mutating a sealed aggregate.
			return nil, aggregatedomain.ErrCycleSealed
		}
		return existing, nil
	}

	now := s.clock.Now()
	record := &aggregatedomain.UsageAggregate{
		ID:         s.genID.Generate(),
		AccountID:  accountID,
		CycleStart: cycleStart,
		CycleEnd:   cycleEnd,
		Currency:   currency,
		Status:     aggregatedomain.AggregateStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return s.aggregaterepo.WithTrx(tx).FindOne(ctx, &aggregatedomain.UsageAggregate{
				AccountID:  accountID,
				CycleStart: cycleStart,
			})
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return s.aggregaterepo.WithTrx(tx).FindOne(ctx, &aggregatedomain.UsageAggregate{
			AccountID:  accountID,
			CycleStart: cycleStart,
		})
	}
	return record, nil
}

// cycleBounds returns the calendar-month window covering ts.
func cycleBounds(ts time.Time) (time.Time, time.Time) {
	ts = ts.UTC()
	start := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
