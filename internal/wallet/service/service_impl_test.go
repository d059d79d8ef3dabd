package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tollgate/internal/clock"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (walletdomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&walletdomain.Wallet{}, &walletdomain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, fake, conn
}

func newTestWallet(t *testing.T, svc walletdomain.Service, balance int64) *walletdomain.Wallet {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	wallet, err := svc.Create(context.Background(), walletdomain.CreateWalletRequest{
		AccountID: node.Generate().String(),
		Currency:  "USD",
	})
	require.NoError(t, err)

	if balance > 0 {
		_, err = svc.Credit(context.Background(), walletdomain.ApplyRequest{
			WalletID:    wallet.ID.String(),
			Amount:      balance,
			ReferenceID: "seed-" + wallet.ID.String(),
		})
		require.NoError(t, err)
	}
	return wallet
}

func TestCreditIncreasesBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 0)

	txn, err := svc.Credit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      5000,
		ReferenceID: "topup-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, walletdomain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, int64(5000), txn.BalanceAfter)

	got, err := svc.Get(context.Background(), wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Balance)
}

func TestDebitRejectsOverdraftAtomically(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 100)

	txn, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      250,
		ReferenceID: "debit-over-1",
	})
	require.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
	require.NotNil(t, txn)
	assert.Equal(t, walletdomain.TransactionStatusFailed, txn.Status)

	got, err := svc.Get(context.Background(), wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance, "failed debit must not move the balance")
}

func TestReferenceReplayReturnsFirstResult(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 1000)

	first, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      400,
		ReferenceID: "debit-ref-1",
	})
	require.NoError(t, err)

	second, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      400,
		ReferenceID: "debit-ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.Get(context.Background(), wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.Balance, "replay must not debit twice")
}

func TestFailedReplayKeepsFailing(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 50)

	_, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      75,
		ReferenceID: "debit-fail-1",
	})
	require.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	// Top up after the failure; the replay still reports the original
	// outcome instead of retrying with the new balance.
	_, err = svc.Credit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      100,
		ReferenceID: "topup-after-fail",
	})
	require.NoError(t, err)

	replayed, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      75,
		ReferenceID: "debit-fail-1",
	})
	require.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
	assert.Equal(t, walletdomain.TransactionStatusFailed, replayed.Status)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 100)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Debit(context.Background(), walletdomain.ApplyRequest{
				WalletID:    wallet.ID.String(),
				Amount:      10,
				ReferenceID: fmt.Sprintf("debit-conc-%02d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 10, succeeded)

	got, err := svc.Get(context.Background(), wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestReferenceValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 100)

	_, err := svc.Credit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      10,
		ReferenceID: "short",
	})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidReference)

	_, err = svc.Credit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      0,
		ReferenceID: "long-enough-ref",
	})
	assert.ErrorIs(t, err, walletdomain.ErrInvalidAmount)
}

func TestReverseCompletedDebit(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 500)

	txn, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      200,
		ReferenceID: "debit-rev-1",
	})
	require.NoError(t, err)

	reversed, err := svc.Reverse(context.Background(), wallet.ID.String(), txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, walletdomain.TransactionStatusReversed, reversed.Status)

	got, err := svc.Get(context.Background(), wallet.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Balance)

	// A reversed entry cannot reverse again.
	_, err = svc.Reverse(context.Background(), wallet.ID.String(), txn.ID.String())
	assert.ErrorIs(t, err, walletdomain.ErrNotReversible)
}

func TestReverseWritesReversalEntry(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 500)

	txn, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
		WalletID:    wallet.ID.String(),
		Amount:      200,
		ReferenceID: "debit-rev-entry",
	})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), wallet.ID.String(), txn.ID.String())
	require.NoError(t, err)

	resp, err := svc.ListTransactions(context.Background(), walletdomain.ListTransactionsRequest{
		WalletID: wallet.ID.String(),
		Type:     "REVERSAL",
	})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 1)

	entry := resp.Transactions[0]
	assert.Equal(t, walletdomain.TransactionTypeReversal, entry.Type)
	assert.Equal(t, walletdomain.TransactionStatusCompleted, entry.Status)
	assert.Equal(t, int64(200), entry.Amount)
	assert.Equal(t, int64(500), entry.BalanceAfter)
	assert.Equal(t, "reversal:"+txn.ID.String(), entry.ReferenceID)

	// The compensating posting itself is final.
	_, err = svc.Reverse(context.Background(), wallet.ID.String(), entry.ID.String())
	assert.ErrorIs(t, err, walletdomain.ErrNotReversible)
}

func TestListTransactionsFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	wallet := newTestWallet(t, svc, 1000)

	for i := 0; i < 3; i++ {
		_, err := svc.Debit(context.Background(), walletdomain.ApplyRequest{
			WalletID:    wallet.ID.String(),
			Amount:      100,
			ReferenceID: fmt.Sprintf("debit-list-%d", i),
		})
		require.NoError(t, err)
	}

	resp, err := svc.ListTransactions(context.Background(), walletdomain.ListTransactionsRequest{
		WalletID: wallet.ID.String(),
		Type:     "DEBIT",
		Status:   "COMPLETED",
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 3)
	for _, txn := range resp.Transactions {
		assert.Equal(t, walletdomain.TransactionTypeDebit, txn.Type)
		assert.Equal(t, walletdomain.TransactionStatusCompleted, txn.Status)
	}
}

func TestResolveStuckFailsStaleEntries(t *testing.T) {
	svc, fake, conn := newTestService(t)
	wallet := newTestWallet(t, svc, 100)

	stale := &walletdomain.Transaction{
		ID:          snowflake.ID(999001),
		WalletID:    wallet.ID,
		ReferenceID: "stuck-ref-001",
		Type:        walletdomain.TransactionTypeDebit,
		Status:      walletdomain.TransactionStatusProcessing,
		Amount:      10,
		CreatedAt:   fake.Now().Add(-time.Hour),
		UpdatedAt:   fake.Now().Add(-time.Hour),
	}
	require.NoError(t, conn.Create(stale).Error)

	count, err := svc.ResolveStuck(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var got walletdomain.Transaction
	require.NoError(t, conn.Where("reference_id = ?", "stuck-ref-001").First(&got).Error)
	assert.Equal(t, walletdomain.TransactionStatusFailed, got.Status)
	assert.Equal(t, "processing_deadline_exceeded", got.FailureReason)
}
