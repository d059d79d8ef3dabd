package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	accountservice "github.com/smallbiznis/tollgate/internal/account/service"
	alertdomain "github.com/smallbiznis/tollgate/internal/alert/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	gatingdomain "github.com/smallbiznis/tollgate/internal/gating/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeDispatcher struct {
	notices []gatingdomain.Notice
}

func (d *fakeDispatcher) Dispatch(_ context.Context, notice gatingdomain.Notice) gatingdomain.Outcome {
	d.notices = append(d.notices, notice)
	return gatingdomain.OutcomeOk
}

type monitorEnv struct {
	conn       *gorm.DB
	svc        alertdomain.Service
	accountSvc accountdomain.Service
	dispatcher *fakeDispatcher
	fake       *clock.FakeClock
	node       *snowflake.Node
}

func newMonitorEnv(t *testing.T) *monitorEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&accountdomain.Account{},
		&walletdomain.Wallet{},
		&alertdomain.Alert{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	accountSvc := accountservice.NewService(accountservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
	})
	dispatcher := &fakeDispatcher{}
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Config: config.Config{
			Alert: config.AlertConfig{GracePeriod: 48 * time.Hour},
		},
		AccountSvc: accountSvc,
		Gating:     dispatcher,
	})

	return &monitorEnv{
		conn:       conn,
		svc:        svc,
		accountSvc: accountSvc,
		dispatcher: dispatcher,
		fake:       fake,
		node:       node,
	}
}

// seedWallet inserts an active prepaid account with a wallet and returns the
// wallet row.
func (e *monitorEnv) seedWallet(t *testing.T, balance, threshold int64) *walletdomain.Wallet {
	t.Helper()

	account := &accountdomain.Account{
		ID:          e.node.Generate(),
		Name:        "acme",
		BillingMode: accountdomain.BillingModePrepaid,
		PlanID:      e.node.Generate(),
		Currency:    "USD",
		SeatCount:   1,
		Status:      accountdomain.AccountStatusActive,
		CreatedAt:   e.fake.Now(),
		UpdatedAt:   e.fake.Now(),
	}
	require.NoError(t, e.conn.Create(account).Error)

	wallet := &walletdomain.Wallet{
		ID:                  e.node.Generate(),
		AccountID:           account.ID,
		Currency:            "USD",
		Balance:             balance,
		LowBalanceThreshold: threshold,
		CreatedAt:           e.fake.Now(),
		UpdatedAt:           e.fake.Now(),
	}
	require.NoError(t, e.conn.Create(wallet).Error)
	return wallet
}

func (e *monitorEnv) reload(t *testing.T, id snowflake.ID) *walletdomain.Wallet {
	t.Helper()
	var w walletdomain.Wallet
	require.NoError(t, e.conn.First(&w, "id = ?", id).Error)
	return &w
}

func (e *monitorEnv) setBalance(t *testing.T, id snowflake.ID, balance int64) {
	t.Helper()
	require.NoError(t, e.conn.Model(&walletdomain.Wallet{}).
		Where("id = ?", id).
		Update("balance", balance).Error)
}

func TestEvaluateRaisesOneAlertPerCrossing(t *testing.T) {
	env := newMonitorEnv(t)
	wallet := env.seedWallet(t, 4000, 5000)
	ctx := context.Background()

	signal, err := env.svc.Evaluate(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalLowBalance, signal)

	// A second evaluation in the same crossing stays quiet.
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalOk, signal)

	alerts, err := env.svc.ListByWallet(ctx, wallet.ID.String())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertdomain.AlertTypeLowBalance, alerts[0].Type)
}

func TestEvaluateAlertsAgainOnNewCrossing(t *testing.T) {
	env := newMonitorEnv(t)
	wallet := env.seedWallet(t, 4000, 5000)
	ctx := context.Background()

	_, err := env.svc.Evaluate(ctx, wallet)
	require.NoError(t, err)

	// Recover above the threshold, then drop back under.
	env.setBalance(t, wallet.ID, 10000)
	signal, err := env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalOk, signal)

	env.setBalance(t, wallet.ID, 3000)
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalLowBalance, signal)

	alerts, err := env.svc.ListByWallet(ctx, wallet.ID.String())
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestEvaluateSuspendsAfterGraceWindow(t *testing.T) {
	env := newMonitorEnv(t)
	wallet := env.seedWallet(t, 0, 5000)
	ctx := context.Background()

	// Depletion stamps the crossing and raises the alert.
	signal, err := env.svc.Evaluate(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalLowBalance, signal)

	// Inside the grace window nothing is suspended.
	env.fake.Advance(1 * time.Hour)
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalOk, signal)

	env.fake.Advance(48 * time.Hour)
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalSuspend, signal)

	account, err := env.accountSvc.Get(ctx, wallet.AccountID.String())
	require.NoError(t, err)
	assert.Equal(t, accountdomain.AccountStatusSuspended, account.Status)

	require.Len(t, env.dispatcher.notices, 1)
	assert.Equal(t, gatingdomain.SignalSuspend, env.dispatcher.notices[0].Signal)

	// Suspension is signalled once; later evaluations are quiet.
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalOk, signal)
	assert.Len(t, env.dispatcher.notices, 1)
}

func TestEvaluateReactivatesAfterTopUp(t *testing.T) {
	env := newMonitorEnv(t)
	wallet := env.seedWallet(t, 0, 5000)
	ctx := context.Background()

	_, err := env.svc.Evaluate(ctx, wallet)
	require.NoError(t, err)
	env.fake.Advance(49 * time.Hour)
	signal, err := env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	require.Equal(t, alertdomain.SignalSuspend, signal)

	// A top-up above zero reactivates even while still under the threshold.
	env.setBalance(t, wallet.ID, 3000)
	signal, err = env.svc.Evaluate(ctx, env.reload(t, wallet.ID))
	require.NoError(t, err)
	assert.Equal(t, alertdomain.SignalReactivate, signal)

	account, err := env.accountSvc.Get(ctx, wallet.AccountID.String())
	require.NoError(t, err)
	assert.Equal(t, accountdomain.AccountStatusActive, account.Status)

	require.Len(t, env.dispatcher.notices, 2)
	assert.Equal(t, gatingdomain.SignalReactivate, env.dispatcher.notices[1].Signal)

	reloaded := env.reload(t, wallet.ID)
	assert.True(t, reloaded.BelowThreshold)
	assert.Nil(t, reloaded.DepletedAt)
}
