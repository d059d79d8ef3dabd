package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/cache"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache cache.RateCardCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.RateCardCache

	cardrepo      repository.Repository[pricingdomain.RateCard]
	versionrepo   repository.Repository[pricingdomain.RateCardVersion]
	componentrepo repository.Repository[pricingdomain.PriceComponent]
	tierrepo      repository.Repository[pricingdomain.PriceTier]
}

func NewService(p ServiceParam) pricingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricing.service"),
		cache: p.Cache,

		cardrepo:      repository.ProvideStore[pricingdomain.RateCard](p.DB),
		versionrepo:   repository.ProvideStore[pricingdomain.RateCardVersion](p.DB),
		componentrepo: repository.ProvideStore[pricingdomain.PriceComponent](p.DB),
		tierrepo:      repository.ProvideStore[pricingdomain.PriceTier](p.DB),
	}
}

func (s *Service) Resolve(ctx context.Context, planID snowflake.ID, currency string, ts time.Time) (*pricingdomain.ResolvedRateCard, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if planID == 0 || currency == "" {
		return nil, pricingdomain.ErrNoActivePricing
	}

	if s.cache != nil {
		if resolved, ok := s.cache.Get(planID, currency, ts); ok {
			return resolved, nil
		}
	}

	card, err := s.cardrepo.FindOne(ctx, &pricingdomain.RateCard{PlanID: planID, Currency: currency})
	if err != nil {
		return nil, err
	}
	if card == nil {
		// A card for the plan in another currency means the account and
		// plan disagree on currency rather than pricing being absent.
		other, err := s.cardrepo.FindOne(ctx, &pricingdomain.RateCard{PlanID: planID})
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, pricingdomain.ErrCurrencyMismatch
		}
		return nil, pricingdomain.ErrNoActivePricing
	}

	versions, err := s.versionrepo.Find(ctx, &pricingdomain.RateCardVersion{RateCardID: card.ID})
	if err != nil {
		return nil, err
	}

	ts = ts.UTC()
	var effective *pricingdomain.RateCardVersion
	for _, version := range versions {
		if !version.Covers(ts) {
			continue
		}
		if effective != nil {
			// Overlapping validity windows; the card is misconfigured.
			return nil, pricingdomain.ErrInvalidRateCard
		}
		effective = version
	}
	if effective == nil {
		return nil, pricingdomain.ErrNoActivePricing
	}

	components, err := s.componentrepo.Find(ctx, &pricingdomain.PriceComponent{VersionID: effective.ID})
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, pricingdomain.ErrInvalidRateCard
	}

	tiers := make(map[snowflake.ID][]*pricingdomain.PriceTier, len(components))
	for _, component := range components {
		if component.Kind != pricingdomain.ComponentKindTier {
			continue
		}
		componentTiers, err := s.tierrepo.Find(ctx, &pricingdomain.PriceTier{ComponentID: component.ID})
		if err != nil {
			return nil, err
		}
		if len(componentTiers) == 0 {
			return nil, pricingdomain.ErrInvalidRateCard
		}
		sortTiers(componentTiers)
		tiers[component.ID] = componentTiers
	}

	resolved := &pricingdomain.ResolvedRateCard{
		Card:       *card,
		Version:    *effective,
		Components: components,
		Tiers:      tiers,
	}
	if s.cache != nil {
		s.cache.Set(planID, currency, resolved)
	}
	return resolved, nil
}

// sortTiers orders slabs by upper bound with the unbounded slab last.
func sortTiers(tiers []*pricingdomain.PriceTier) {
	for i := 1; i < len(tiers); i++ {
		for j := i; j > 0 && tierLess(tiers[j], tiers[j-1]); j-- {
			tiers[j], tiers[j-1] = tiers[j-1], tiers[j]
		}
	}
}

func tierLess(a, b *pricingdomain.PriceTier) bool {
	if a.UpTo == nil {
		return false
	}
	if b.UpTo == nil {
		return true
	}
	return *a.UpTo < *b.UpTo
}
