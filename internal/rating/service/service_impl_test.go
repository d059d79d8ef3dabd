package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/tollgate/internal/pricing/service"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type ratingEnv struct {
	conn      *gorm.DB
	svc       ratingdomain.Service
	fake      *clock.FakeClock
	node      *snowflake.Node
	planID    snowflake.ID
	versionID snowflake.ID
}

func newRatingEnv(t *testing.T) *ratingEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&pricingdomain.RateCard{},
		&pricingdomain.RateCardVersion{},
		&pricingdomain.PriceComponent{},
		&pricingdomain.PriceTier{},
		&ratingdomain.RatedCharge{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	pricingSvc := pricingservice.NewService(pricingservice.ServiceParam{
		DB: conn, Log: log,
	})
	svc := NewService(ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: fake, PricingSvc: pricingSvc,
	})

	env := &ratingEnv{conn: conn, svc: svc, fake: fake, node: node}
	env.planID = node.Generate()

	card := &pricingdomain.RateCard{ID: node.Generate(), PlanID: env.planID, Currency: "USD"}
	require.NoError(t, conn.Create(card).Error)

	version := &pricingdomain.RateCardVersion{
		ID:         node.Generate(),
		RateCardID: card.ID,
		Version:    1,
		ValidFrom:  fake.Now().AddDate(0, -6, 0),
	}
	require.NoError(t, conn.Create(version).Error)
	env.versionID = version.ID

	return env
}

func (e *ratingEnv) addComponent(t *testing.T, component *pricingdomain.PriceComponent, tiers ...*pricingdomain.PriceTier) {
	t.Helper()
	component.ID = e.node.Generate()
	component.VersionID = e.versionID
	require.NoError(t, e.conn.Create(component).Error)
	for _, tier := range tiers {
		tier.ID = e.node.Generate()
		tier.ComponentID = component.ID
		require.NoError(t, e.conn.Create(tier).Error)
	}
}

func (e *ratingEnv) account() *accountdomain.Account {
	return &accountdomain.Account{
		ID:        e.node.Generate(),
		PlanID:    e.planID,
		Currency:  "USD",
		SeatCount: 1,
	}
}

func (e *ratingEnv) event(id, eventType string, qty float64) *eventdomain.UsageEvent {
	return &eventdomain.UsageEvent{
		ID:         id,
		Type:       eventType,
		Quantity:   qty,
		OccurredAt: e.fake.Now(),
		Status:     eventdomain.EventStatusReceived,
	}
}

func float64Ptr(v float64) *float64 { return &v }

func TestRateTieredSlabsSpanBoundaries(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UpTo: float64Ptr(100), UnitAmount: 10},
		&pricingdomain.PriceTier{UnitAmount: 5},
	)
	account := env.account()
	ctx := context.Background()

	// 150 units: first 100 in the 10/unit slab, the remaining 50 at 5/unit.
	charge, err := env.svc.Rate(ctx, account, env.event("ev-1", "SMS", 150))
	require.NoError(t, err)
	assert.Equal(t, int64(100*10+50*5), charge.Amount)

	// The next 100 units all land in the second slab.
	charge, err = env.svc.Rate(ctx, account, env.event("ev-2", "SMS", 100))
	require.NoError(t, err)
	assert.Equal(t, int64(100*5), charge.Amount)
}

func TestBackfilledEventRatesAgainstItsOwnCycle(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UpTo: float64Ptr(100), UnitAmount: 1},
		&pricingdomain.PriceTier{UnitAmount: 2},
	)
	account := env.account()
	ctx := context.Background()

	// June usage fills the first slab completely.
	charge, err := env.svc.Rate(ctx, account, env.event("ev-june", "SMS", 100))
	require.NoError(t, err)
	require.Equal(t, int64(100), charge.Amount)

	// A backfilled May event starts at May's empty slab position even
	// though rating runs in June.
	may := env.event("ev-may", "SMS", 10)
	may.OccurredAt = env.fake.Now().AddDate(0, -1, 0)
	charge, err = env.svc.Rate(ctx, account, may)
	require.NoError(t, err)
	assert.Equal(t, int64(10), charge.Amount)

	// June's slab position is likewise untouched by the backfill.
	charge, err = env.svc.Rate(ctx, account, env.event("ev-june-2", "SMS", 10))
	require.NoError(t, err)
	assert.Equal(t, int64(20), charge.Amount)
}

func TestRateReplayKeepsOriginalCharge(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UnitAmount: 7},
	)
	account := env.account()
	ctx := context.Background()

	first, err := env.svc.Rate(ctx, account, env.event("ev-1", "SMS", 10))
	require.NoError(t, err)

	replay, err := env.svc.Rate(ctx, account, env.event("ev-1", "SMS", 10))
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, first.Amount, replay.Amount)

	var count int64
	require.NoError(t, env.conn.Model(&ratingdomain.RatedCharge{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRateFixedComponent(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t, &pricingdomain.PriceComponent{
		Code: "platform", EventType: "PLATFORM_FEE",
		Kind: pricingdomain.ComponentKindFixed, FixedAmount: 9900,
	})

	charge, err := env.svc.Rate(context.Background(), env.account(), env.event("ev-1", "PLATFORM_FEE", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(9900), charge.Amount)
}

func TestRateSeatComponent(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t, &pricingdomain.PriceComponent{
		Code: "seats", EventType: "SEAT_CHARGE",
		Kind: pricingdomain.ComponentKindSeat, PerSeatAmount: 500,
	})
	account := env.account()
	account.SeatCount = 3

	charge, err := env.svc.Rate(context.Background(), account, env.event("ev-1", "SEAT_CHARGE", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), charge.Amount)
}

func TestRateOverageChargesPastAllowanceOnly(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t, &pricingdomain.PriceComponent{
		Code: "api", EventType: "API_CALL",
		Kind:       pricingdomain.ComponentKindOverage,
		UnitAmount: 20, IncludedQuantity: 100,
	})
	account := env.account()
	ctx := context.Background()

	charge, err := env.svc.Rate(ctx, account, env.event("ev-1", "API_CALL", 80))
	require.NoError(t, err)
	assert.Equal(t, int64(0), charge.Amount, "inside the allowance")

	// 80 used, this event crosses the allowance by 20 units.
	charge, err = env.svc.Rate(ctx, account, env.event("ev-2", "API_CALL", 40))
	require.NoError(t, err)
	assert.Equal(t, int64(20*20), charge.Amount)
}

func TestRateRoundsHalfUpOnce(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UnitAmount: 15},
	)

	// 0.5 units at 15 minor units is 7.5 raw, rounded half-up to 8.
	charge, err := env.svc.Rate(context.Background(), env.account(), env.event("ev-1", "SMS", 0.5))
	require.NoError(t, err)
	assert.Equal(t, int64(8), charge.Amount)
}

func TestRateUnknownEventTypeHasNoPricing(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UnitAmount: 10},
	)

	_, err := env.svc.Rate(context.Background(), env.account(), env.event("ev-1", "EMAIL", 1))
	assert.ErrorIs(t, err, pricingdomain.ErrNoActivePricing)
}

func TestRateCurrencyMismatch(t *testing.T) {
	env := newRatingEnv(t)
	env.addComponent(t,
		&pricingdomain.PriceComponent{Code: "sms", EventType: "SMS", Kind: pricingdomain.ComponentKindTier},
		&pricingdomain.PriceTier{UnitAmount: 10},
	)
	account := env.account()
	account.Currency = "INR"

	_, err := env.svc.Rate(context.Background(), account, env.event("ev-1", "SMS", 1))
	assert.ErrorIs(t, err, pricingdomain.ErrCurrencyMismatch)
}
