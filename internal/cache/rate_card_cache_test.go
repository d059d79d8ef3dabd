package cache

import (
	"testing"
	"time"

	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
)

func resolvedCard(validFrom time.Time, validTo *time.Time) *pricingdomain.ResolvedRateCard {
	return &pricingdomain.ResolvedRateCard{
		Card: pricingdomain.RateCard{ID: 1, PlanID: 42, Currency: "INR"},
		Version: pricingdomain.RateCardVersion{
			ID:         2,
			RateCardID: 1,
			Version:    1,
			ValidFrom:  validFrom,
			ValidTo:    validTo,
		},
	}
}

func TestRateCardCacheRoundTrip(t *testing.T) {
	c := NewRateCardCache()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := c.Get(42, "INR", ts)
	assert.False(t, ok)

	c.Set(42, "INR", resolvedCard(ts.Add(-time.Hour), nil))

	got, ok := c.Get(42, "INR", ts)
	assert.True(t, ok)
	assert.Equal(t, 42, int(got.Card.PlanID))

	_, ok = c.Get(42, "USD", ts)
	assert.False(t, ok)
}

func TestRateCardCacheMissesOutsideValidityWindow(t *testing.T) {
	c := NewRateCardCache()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validTo := ts.Add(time.Hour)

	c.Set(42, "INR", resolvedCard(ts.Add(-time.Hour), &validTo))

	_, ok := c.Get(42, "INR", ts.Add(2*time.Hour))
	assert.False(t, ok, "event past the validity window must resolve fresh")

	_, ok = c.Get(42, "INR", ts.Add(-2*time.Hour))
	assert.False(t, ok, "event before the validity window must resolve fresh")
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2, 0)
	got, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}
