package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	PricingSvc pricingdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	chargerepo repository.Repository[ratingdomain.RatedCharge]
	pricingSvc pricingdomain.Service
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("rating.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		chargerepo: repository.ProvideStore[ratingdomain.RatedCharge](p.DB),
		pricingSvc: p.PricingSvc,
	}
}

func (s *Service) Rate(ctx context.Context, account *accountdomain.Account, event *eventdomain.UsageEvent) (*ratingdomain.RatedCharge, error) {
	if account == nil {
		return nil, accountdomain.ErrInvalidAccount
	}
	if event == nil {
		return nil, eventdomain.ErrInvalidEvent
	}

	resolved, err := s.pricingSvc.Resolve(ctx, account.PlanID, account.Currency, event.OccurredAt)
	if err != nil {
		return nil, err
	}

	component := matchComponent(resolved.Components, event.Type)
	if component == nil {
		return nil, pricingdomain.ErrNoActivePricing
	}

	usageToDate, err := s.usageToDate(ctx, account.ID, component.Code, event.OccurredAt)
	if err != nil {
		return nil, err
	}

	rawAmount, err := componentAmount(component, resolved.Tiers[component.ID], account.SeatCount, usageToDate, event.Quantity)
	if err != nil {
		return nil, err
	}

	checksum := buildChecksum(event.ID, component.ID, resolved.Version.ID, event.Quantity, usageToDate)
	record := &ratingdomain.RatedCharge{
		ID:            s.genID.Generate(),
		EventID:       event.ID,
		AccountID:     account.ID,
		ComponentCode: component.Code,
		Kind:          component.Kind,
		Currency:      resolved.Card.Currency,
		Quantity:      event.Quantity,
		Amount:        roundMoney(rawAmount),
		OccurredAt:    event.OccurredAt.UTC(),
		RatedAt:       s.clock.Now(),
		Checksum:      checksum,
		CreatedAt:     s.clock.Now(),
	}

	// Replays collide on the checksum and keep the original charge.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return s.chargerepo.FindOne(ctx, &ratingdomain.RatedCharge{Checksum: checksum})
	}

	return record, nil
}

// usageToDate sums the quantity already rated for the component inside the
// event's calendar-month cycle. Cumulative tiers and overage allowances
// look at this running total rather than the single event. Charges are
// bucketed by occurrence time, so a backfilled event counts only the usage
// of its own cycle no matter when rating runs.
func (s *Service) usageToDate(ctx context.Context, accountID snowflake.ID, componentCode string, ts time.Time) (float64, error) {
	ts = ts.UTC()
	cycleStart := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 1, 0)

	var total float64
	err := s.db.WithContext(ctx).
		Model(&ratingdomain.RatedCharge{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("account_id = ? AND component_code = ? AND occurred_at >= ? AND occurred_at < ?",
			accountID, componentCode, cycleStart, cycleEnd).
		Scan(&total).Error
	return total, err
}

func matchComponent(components []*pricingdomain.PriceComponent, eventType string) *pricingdomain.PriceComponent {
	for _, component := range components {
		if component.EventType == eventType {
			return component
		}
	}
	return nil
}

func componentAmount(component *pricingdomain.PriceComponent, tiers []*pricingdomain.PriceTier, seatCount int64, usageToDate, quantity float64) (float64, error) {
	switch component.Kind {
	case pricingdomain.ComponentKindFixed:
		return float64(component.FixedAmount), nil
	case pricingdomain.ComponentKindSeat:
		return float64(component.PerSeatAmount) * float64(seatCount) * quantity, nil
	case pricingdomain.ComponentKindOverage:
		charged := math.Max(0, usageToDate+quantity-component.IncludedQuantity) -
			math.Max(0, usageToDate-component.IncludedQuantity)
		return float64(component.UnitAmount) * charged, nil
	case pricingdomain.ComponentKindTier:
		if len(tiers) == 0 {
			return 0, pricingdomain.ErrInvalidRateCard
		}
		return tierCost(tiers, usageToDate+quantity) - tierCost(tiers, usageToDate), nil
	default:
		return 0, pricingdomain.ErrInvalidRateCard
	}
}

// tierCost prices a cumulative usage total against the slab table.
func tierCost(tiers []*pricingdomain.PriceTier, total float64) float64 {
	cost := 0.0
	lower := 0.0
	for _, tier := range tiers {
		if total <= lower {
			break
		}
		upper := total
		if tier.UpTo != nil && *tier.UpTo < upper {
			upper = *tier.UpTo
		}
		if upper > lower {
			cost += float64(tier.UnitAmount) * (upper - lower)
		}
		if tier.UpTo == nil {
			break
		}
		lower = *tier.UpTo
	}
	return cost
}

func roundMoney(raw float64) int64 {
	return int64(math.Floor(raw + 0.5))
}

func buildChecksum(eventID string, componentID, versionID snowflake.ID, quantity, usageToDate float64) string {
	payload := fmt.Sprintf("%s|%d|%d|%.9f|%.9f", eventID, componentID, versionID, quantity, usageToDate)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
