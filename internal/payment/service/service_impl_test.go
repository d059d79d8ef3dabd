package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	aggregateservice "github.com/smallbiznis/tollgate/internal/aggregate/service"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/tollgate/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
	taxservice "github.com/smallbiznis/tollgate/internal/tax/service"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	walletservice "github.com/smallbiznis/tollgate/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type settlementEnv struct {
	svc        paymentdomain.Service
	walletSvc  walletdomain.Service
	invoiceSvc invoicedomain.Service
	fake       *clock.FakeClock
	node       *snowflake.Node

	aggregateSvc aggregatedomain.Service
}

func newSettlementEnv(t *testing.T) *settlementEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&aggregatedomain.UsageAggregate{},
		&aggregatedomain.AggregateItem{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&paymentdomain.SettlementEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	walletSvc := walletservice.NewService(walletservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
	})
	aggregateSvc := aggregateservice.NewService(aggregateservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Config: config.Config{
			Invoice: config.InvoiceConfig{NumberPrefix: "TG", DueInDays: 14},
		},
		AggregateSvc: aggregateSvc,
		TaxSvc:       taxservice.NewService(taxservice.ServiceParam{Log: log}),
	})
	svc := NewService(ServiceParam{
		DB:         conn,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		WalletSvc:  walletSvc,
		InvoiceSvc: invoiceSvc,
	})

	return &settlementEnv{
		svc:          svc,
		walletSvc:    walletSvc,
		invoiceSvc:   invoiceSvc,
		fake:         fake,
		node:         node,
		aggregateSvc: aggregateSvc,
	}
}

func (e *settlementEnv) newWallet(t *testing.T) *walletdomain.Wallet {
	t.Helper()
	wallet, err := e.walletSvc.Create(context.Background(), walletdomain.CreateWalletRequest{
		AccountID: e.node.Generate().String(),
		Currency:  "USD",
	})
	require.NoError(t, err)
	return wallet
}

func (e *settlementEnv) pendingInvoice(t *testing.T) *invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()

	accountID := e.node.Generate()
	require.NoError(t, e.aggregateSvc.Add(ctx, &ratingdomain.RatedCharge{
		ID:            e.node.Generate(),
		EventID:       e.node.Generate().String(),
		AccountID:     accountID,
		ComponentCode: "api_calls",
		Kind:          pricingdomain.ComponentKindTier,
		Currency:      "INR",
		Quantity:      10,
		Amount:        50000,
		OccurredAt:    e.fake.Now(),
		RatedAt:       e.fake.Now(),
	}))
	sealed, err := e.aggregateSvc.CloseCycle(ctx, accountID.String(), e.fake.Now())
	require.NoError(t, err)

	inv, err := e.invoiceSvc.Generate(ctx, invoicedomain.GenerateRequest{
		AggregateID:  sealed.ID.String(),
		Jurisdiction: taxdomain.JurisdictionINGST,
	})
	require.NoError(t, err)
	inv, err = e.invoiceSvc.Issue(ctx, inv.ID.String())
	require.NoError(t, err)
	return inv
}

func TestWalletSettlementCreditsOnce(t *testing.T) {
	env := newSettlementEnv(t)
	wallet := env.newWallet(t)
	ctx := context.Background()

	req := paymentdomain.SettlementRequest{
		GatewayReference: "pay_3f8c1a2b",
		GatewayStatus:    "succeeded",
		WalletID:         wallet.ID.String(),
		Amount:           5000,
	}

	result, err := env.svc.HandleSettlement(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SettlementOutcomeApplied, result.Outcome)

	// Gateway redelivery must not double-credit.
	result, err = env.svc.HandleSettlement(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SettlementOutcomeDuplicate, result.Outcome)

	reloaded, err := env.walletSvc.Get(ctx, wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), reloaded.Balance)
}

func TestInvoiceSettlementMarksPaid(t *testing.T) {
	env := newSettlementEnv(t)
	inv := env.pendingInvoice(t)
	ctx := context.Background()

	req := paymentdomain.SettlementRequest{
		GatewayReference: "pay_inv_7d2e9f04",
		GatewayStatus:    "SUCCEEDED",
		InvoiceID:        inv.ID.String(),
		Amount:           inv.Total,
	}

	result, err := env.svc.HandleSettlement(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SettlementOutcomeApplied, result.Outcome)

	got, _, err := env.invoiceSvc.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, got.Status)

	result, err = env.svc.HandleSettlement(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SettlementOutcomeDuplicate, result.Outcome)
}

func TestFailedSettlementIsRecordedOnly(t *testing.T) {
	env := newSettlementEnv(t)
	wallet := env.newWallet(t)
	ctx := context.Background()

	result, err := env.svc.HandleSettlement(ctx, paymentdomain.SettlementRequest{
		GatewayReference: "pay_failed_01",
		GatewayStatus:    "failed",
		WalletID:         wallet.ID.String(),
		Amount:           5000,
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.SettlementOutcomeIgnored, result.Outcome)

	reloaded, err := env.walletSvc.Get(ctx, wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Balance)
}

func TestSettlementValidation(t *testing.T) {
	env := newSettlementEnv(t)
	wallet := env.newWallet(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  paymentdomain.SettlementRequest
		want error
	}{
		{
			"short reference",
			paymentdomain.SettlementRequest{GatewayReference: "pay_1", GatewayStatus: "succeeded", WalletID: wallet.ID.String(), Amount: 100},
			paymentdomain.ErrInvalidSettlement,
		},
		{
			"unknown status",
			paymentdomain.SettlementRequest{GatewayReference: "pay_12345678", GatewayStatus: "maybe", WalletID: wallet.ID.String(), Amount: 100},
			paymentdomain.ErrInvalidSettlement,
		},
		{
			"no target",
			paymentdomain.SettlementRequest{GatewayReference: "pay_12345678", GatewayStatus: "succeeded", Amount: 100},
			paymentdomain.ErrMissingTarget,
		},
		{
			"both targets",
			paymentdomain.SettlementRequest{GatewayReference: "pay_12345678", GatewayStatus: "succeeded", WalletID: wallet.ID.String(), InvoiceID: env.node.Generate().String(), Amount: 100},
			paymentdomain.ErrMissingTarget,
		},
		{
			"non positive amount",
			paymentdomain.SettlementRequest{GatewayReference: "pay_12345678", GatewayStatus: "succeeded", WalletID: wallet.ID.String(), Amount: 0},
			paymentdomain.ErrInvalidSettlement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.HandleSettlement(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
