package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (aggregatedomain.Service, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&aggregatedomain.UsageAggregate{}, &aggregatedomain.AggregateItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, fake, node
}

func newCharge(node *snowflake.Node, accountID snowflake.ID, code string, quantity float64, amount int64, occurredAt time.Time) *ratingdomain.RatedCharge {
	return &ratingdomain.RatedCharge{
		ID:            node.Generate(),
		EventID:       node.Generate().String(),
		AccountID:     accountID,
		ComponentCode: code,
		Kind:          pricingdomain.ComponentKindTier,
		Currency:      "INR",
		Quantity:      quantity,
		Amount:        amount,
		OccurredAt:    occurredAt,
		RatedAt:       occurredAt,
	}
}

func TestAddAccumulatesPerComponent(t *testing.T) {
	svc, fake, node := newTestService(t)
	ctx := context.Background()
	accountID := node.Generate()

	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 100, 500, fake.Now())))
	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 50, 250, fake.Now())))
	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "sms", 2, 100, fake.Now())))

	sealed, err := svc.CloseCycle(ctx, accountID.String(), fake.Now())
	require.NoError(t, err)

	_, items, err := svc.Get(ctx, sealed.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 2)

	totals := map[string]int64{}
	quantities := map[string]float64{}
	for _, item := range items {
		totals[item.ComponentCode] = item.Amount
		quantities[item.ComponentCode] = item.Quantity
	}
	assert.Equal(t, int64(750), totals["api_calls"])
	assert.Equal(t, float64(150), quantities["api_calls"])
	assert.Equal(t, int64(100), totals["sms"])
}

func TestCloseCycleIdempotent(t *testing.T) {
	svc, fake, node := newTestService(t)
	ctx := context.Background()
	accountID := node.Generate()

	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 10, 50, fake.Now())))

	first, err := svc.CloseCycle(ctx, accountID.String(), fake.Now())
	require.NoError(t, err)
	assert.Equal(t, aggregatedomain.AggregateStatusSealed, first.Status)
	require.NotNil(t, first.SealedAt)

	fake.Advance(time.Hour)
	second, err := svc.CloseCycle(ctx, accountID.String(), fake.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SealedAt.Unix(), second.SealedAt.Unix(), "second close must not move the seal time")
}

func TestAddAfterSealRejected(t *testing.T) {
	svc, fake, node := newTestService(t)
	ctx := context.Background()
	accountID := node.Generate()

	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 10, 50, fake.Now())))
	_, err := svc.CloseCycle(ctx, accountID.String(), fake.Now())
	require.NoError(t, err)

	err = svc.Add(ctx, newCharge(node, accountID, "api_calls", 5, 25, fake.Now()))
	assert.ErrorIs(t, err, aggregatedomain.ErrCycleSealed)
}

func TestLateRatedChargeJoinsOccurrenceCycle(t *testing.T) {
	svc, fake, node := newTestService(t)
	ctx := context.Background()
	accountID := node.Generate()
	february := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

	// Rated in March, occurred in February.
	late := newCharge(node, accountID, "api_calls", 10, 50, february)
	late.RatedAt = fake.Now()
	require.NoError(t, svc.Add(ctx, late))

	sealed, err := svc.CloseCycle(ctx, accountID.String(), february)
	require.NoError(t, err)
	_, items, err := svc.Get(ctx, sealed.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(50), items[0].Amount)

	// Once February is sealed, another late-rated February charge is
	// rejected even though rating ran in March.
	straggler := newCharge(node, accountID, "api_calls", 5, 25, february.Add(time.Hour))
	straggler.RatedAt = fake.Now()
	assert.ErrorIs(t, svc.Add(ctx, straggler), aggregatedomain.ErrCycleSealed)
}

func TestCloseCycleWithoutUsage(t *testing.T) {
	svc, fake, node := newTestService(t)

	_, err := svc.CloseCycle(context.Background(), node.Generate().String(), fake.Now())
	assert.ErrorIs(t, err, aggregatedomain.ErrNotFound)
}

func TestChargesLandInTheirOwnCycle(t *testing.T) {
	svc, fake, node := newTestService(t)
	ctx := context.Background()
	accountID := node.Generate()

	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 10, 50, fake.Now())))
	nextMonth := fake.Now().AddDate(0, 1, 0)
	require.NoError(t, svc.Add(ctx, newCharge(node, accountID, "api_calls", 20, 100, nextMonth)))

	marchSealed, err := svc.CloseCycle(ctx, accountID.String(), fake.Now())
	require.NoError(t, err)
	_, items, err := svc.Get(ctx, marchSealed.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(50), items[0].Amount)

	aprilSealed, err := svc.CloseCycle(ctx, accountID.String(), nextMonth)
	require.NoError(t, err)
	assert.NotEqual(t, marchSealed.ID, aprilSealed.ID)
}
