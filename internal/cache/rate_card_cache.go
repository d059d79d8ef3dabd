package cache

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
)

// Resolved pricing is reused across events for the same plan. The TTL bounds
// how long a rate card edit takes to reach the rating path.
const defaultRateCardTTL = 45 * time.Second

// RateCardCache stores resolved rate cards for the rating hot path.
type RateCardCache interface {
	Get(planID snowflake.ID, currency string, ts time.Time) (*pricingdomain.ResolvedRateCard, bool)
	Set(planID snowflake.ID, currency string, resolved *pricingdomain.ResolvedRateCard)
}

type rateCardCache struct {
	cards Cache[string, *pricingdomain.ResolvedRateCard]
	ttl   time.Duration
}

// NewRateCardCache returns an in-memory cache tuned for event rating.
func NewRateCardCache() RateCardCache {
	return &rateCardCache{
		cards: NewTTLCache[string, *pricingdomain.ResolvedRateCard](),
		ttl:   defaultRateCardTTL,
	}
}

func (c *rateCardCache) Get(planID snowflake.ID, currency string, ts time.Time) (*pricingdomain.ResolvedRateCard, bool) {
	resolved, ok := c.cards.Get(rateCardKey(planID, currency))
	if !ok || resolved == nil {
		return nil, false
	}
	// A cached version is only valid while the event timestamp falls inside
	// its validity window.
	if !resolved.Version.Covers(ts.UTC()) {
		return nil, false
	}
	return resolved, true
}

func (c *rateCardCache) Set(planID snowflake.ID, currency string, resolved *pricingdomain.ResolvedRateCard) {
	if resolved == nil {
		return
	}
	c.cards.Set(rateCardKey(planID, currency), resolved, c.ttl)
}

func rateCardKey(planID snowflake.ID, currency string) string {
	return fmt.Sprintf("%d|%s", planID, currency)
}
