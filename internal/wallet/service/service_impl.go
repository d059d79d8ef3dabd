package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/db"
	"github.com/smallbiznis/tollgate/pkg/db/option"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
	"github.com/smallbiznis/tollgate/pkg/keymutex"
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

	genID      *snowflake.Node
	clock      clock.Clock
	locks      *keymutex.KeyMutex
	walletrepo repository.Repository[walletdomain.Wallet]
	txnrepo    repository.Repository[walletdomain.Transaction]
}

func NewService(p ServiceParam) walletdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("wallet.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		locks:      keymutex.New(0),
		walletrepo: repository.ProvideStore[walletdomain.Wallet](p.DB),
		txnrepo:    repository.ProvideStore[walletdomain.Transaction](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req walletdomain.CreateWalletRequest) (*walletdomain.Wallet, error) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return nil, walletdomain.ErrInvalidWallet
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, walletdomain.ErrInvalidWallet
	}
	if req.LowBalanceThreshold < 0 {
		return nil, walletdomain.ErrInvalidWallet
	}

	now := s.clock.Now()
	record := &walletdomain.Wallet{
		ID:                  s.genID.Generate(),
		AccountID:           accountID,
		Currency:            currency,
		Balance:             0,
		LowBalanceThreshold: req.LowBalanceThreshold,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.walletrepo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, walletID string) (*walletdomain.Wallet, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(walletID))
	if err != nil || id == 0 {
		return nil, walletdomain.ErrInvalidWallet
	}

	record, err := s.walletrepo.FindOne(ctx, &walletdomain.Wallet{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, walletdomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) Credit(ctx context.Context, req walletdomain.ApplyRequest) (*walletdomain.Transaction, error) {
	return s.apply(ctx, req, walletdomain.TransactionTypeCredit)
}

func (s *Service) Debit(ctx context.Context, req walletdomain.ApplyRequest) (*walletdomain.Transaction, error) {
	return s.apply(ctx, req, walletdomain.TransactionTypeDebit)
}

// apply runs one balance mutation under the wallet's stripe lock plus a row
// lock inside a single transaction, so entries for one wallet form a strict
// sequence even across processes.
func (s *Service) apply(ctx context.Context, req walletdomain.ApplyRequest, txnType walletdomain.TransactionType) (*walletdomain.Transaction, error) {
	walletID, err := snowflake.ParseString(strings.TrimSpace(req.WalletID))
	if err != nil || walletID == 0 {
		return nil, walletdomain.ErrInvalidWallet
	}
	if req.Amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	referenceID := strings.TrimSpace(req.ReferenceID)
	if len(referenceID) < walletdomain.MinReferenceIDLength || len(referenceID) > walletdomain.MaxReferenceIDLength {
		return nil, walletdomain.ErrInvalidReference
	}

	key := walletID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Replay fast path: the first outcome for a reference is final.
	existing, err := s.txnrepo.FindOne(ctx, &walletdomain.Transaction{WalletID: walletID, ReferenceID: referenceID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, replayError(existing)
	}

	now := s.clock.Now()
	record := &walletdomain.Transaction{
		ID:          s.genID.Generate(),
		WalletID:    walletID,
		ReferenceID: referenceID,
		Type:        txnType,
		Status:      walletdomain.TransactionStatusInitiated,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var insufficient bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.lockWallet(tx, walletID)
		if err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race to a concurrent writer holding the same
			// reference. Treated as a replay below.
			record = nil
			return nil
		}

		record.Status = walletdomain.TransactionStatusProcessing
		if err := tx.Model(record).Update("status", record.Status).Error; err != nil {
			return err
		}

		if txnType == walletdomain.TransactionTypeDebit && wallet.Balance < req.Amount {
			insufficient = true
			record.Status = walletdomain.TransactionStatusFailed
			record.FailureReason = walletdomain.ErrInsufficientFunds.Error()
			record.BalanceAfter = wallet.Balance
			return tx.Model(record).Updates(map[string]any{
				"status":         record.Status,
				"failure_reason": record.FailureReason,
				"balance_after":  record.BalanceAfter,
				"updated_at":     s.clock.Now(),
			}).Error
		}

		newBalance := wallet.Balance + req.Amount
		if txnType == walletdomain.TransactionTypeDebit {
			newBalance = wallet.Balance - req.Amount
		}

		if err := tx.Model(&walletdomain.Wallet{}).
			Where("id = ?", walletID).
			Updates(map[string]any{
				"balance":    newBalance,
				"updated_at": s.clock.Now(),
			}).Error; err != nil {
			return err
		}

		record.Status = walletdomain.TransactionStatusCompleted
		record.BalanceAfter = newBalance
		return tx.Model(record).Updates(map[string]any{
			"status":        record.Status,
			"balance_after": record.BalanceAfter,
			"updated_at":    s.clock.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if record == nil {
		existing, err := s.txnrepo.FindOne(ctx, &walletdomain.Transaction{WalletID: walletID, ReferenceID: referenceID})
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, walletdomain.ErrTransactionNotFound
		}
		return existing, replayError(existing)
	}

	if insufficient {
		return record, walletdomain.ErrInsufficientFunds
	}
	return record, nil
}

func (s *Service) Reverse(ctx context.Context, walletID, transactionID string) (*walletdomain.Transaction, error) {
	wID, err := snowflake.ParseString(strings.TrimSpace(walletID))
	if err != nil || wID == 0 {
		return nil, walletdomain.ErrInvalidWallet
	}
	txnID, err := snowflake.ParseString(strings.TrimSpace(transactionID))
	if err != nil || txnID == 0 {
		return nil, walletdomain.ErrTransactionNotFound
	}

	key := wID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var reversed *walletdomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.lockWallet(tx, wID)
		if err != nil {
			return err
		}

		var txn walletdomain.Transaction
		if err := tx.Where("id = ? AND wallet_id = ?", txnID, wID).First(&txn).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return walletdomain.ErrTransactionNotFound
			}
			return err
		}
		if txn.Status != walletdomain.TransactionStatusCompleted ||
			txn.Type == walletdomain.TransactionTypeReversal {
			return walletdomain.ErrNotReversible
		}

		newBalance := wallet.Balance
		switch txn.Type {
		case walletdomain.TransactionTypeDebit:
			newBalance += txn.Amount
		case walletdomain.TransactionTypeCredit:
			if wallet.Balance < txn.Amount {
				return walletdomain.ErrInsufficientFunds
			}
			newBalance -= txn.Amount
		}

		if err := tx.Model(&walletdomain.Wallet{}).
			Where("id = ?", wID).
			Updates(map[string]any{
				"balance":    newBalance,
				"updated_at": s.clock.Now(),
			}).Error; err != nil {
			return err
		}

		now := s.clock.Now()
		// The compensating posting keeps the ledger append-only: the balance
		// effect of undoing the entry is itself an entry.
		entry := &walletdomain.Transaction{
			ID:           s.genID.Generate(),
			WalletID:     wID,
			ReferenceID:  "reversal:" + txn.ID.String(),
			Type:         walletdomain.TransactionTypeReversal,
			Status:       walletdomain.TransactionStatusCompleted,
			Amount:       txn.Amount,
			BalanceAfter: newBalance,
			Description:  "reversal of " + txn.ID.String(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		txn.Status = walletdomain.TransactionStatusReversed
		txn.UpdatedAt = now
		if err := tx.Model(&txn).Updates(map[string]any{
			"status":     txn.Status,
			"updated_at": txn.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		reversed = &txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversed, nil
}

func (s *Service) ListTransactions(ctx context.Context, req walletdomain.ListTransactionsRequest) (walletdomain.ListTransactionsResponse, error) {
	walletID, err := snowflake.ParseString(strings.TrimSpace(req.WalletID))
	if err != nil || walletID == 0 {
		return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidWallet
	}

	filter := &walletdomain.Transaction{WalletID: walletID}
	if txnType := strings.ToUpper(strings.TrimSpace(req.Type)); txnType != "" {
		filter.Type = walletdomain.TransactionType(txnType)
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = walletdomain.TransactionStatus(status)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	opts := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	}
	if !req.From.IsZero() {
		opts = append(opts, option.WithWhere("created_at >= ?", req.From.UTC()))
	}
	if !req.To.IsZero() {
		opts = append(opts, option.WithWhere("created_at < ?", req.To.UTC()))
	}

	items, err := s.txnrepo.Find(ctx, filter, opts...)
	if err != nil {
		return walletdomain.ListTransactionsResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, pageSize, func(t *walletdomain.Transaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: t.ID.String()})
		return token
	})

	return walletdomain.ListTransactionsResponse{
		PageInfo:     *pageInfo,
		Transactions: items,
	}, nil
}

// ResolveStuck fails entries stranded in a non-terminal status past the
// deadline. apply commits an entry in the same transaction as its balance
// effect, so its INITIATED and PROCESSING states are never durable on their
// own; this sweep covers entries staged by out-of-band writers and any
// future path that settles an entry across transactions.
func (s *Service) ResolveStuck(ctx context.Context, deadline time.Duration) (int64, error) {
	if deadline <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-deadline)

	result := s.db.WithContext(ctx).
		Model(&walletdomain.Transaction{}).
		Where("status IN ? AND updated_at < ?", []walletdomain.TransactionStatus{
			walletdomain.TransactionStatusInitiated,
			walletdomain.TransactionStatusProcessing,
		}, cutoff).
		Updates(map[string]any{
			"status":         walletdomain.TransactionStatusFailed,
			"failure_reason": "processing_deadline_exceeded",
			"updated_at":     s.clock.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Warn("resolved stuck wallet transactions", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) lockWallet(tx *gorm.DB, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	stmt := tx.Model(&walletdomain.Wallet{})
	if !db.IsSQLite(tx) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var wallet walletdomain.Wallet
	if err := stmt.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, walletdomain.ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// replayError re-raises the terminal outcome recorded for a reference so
// retries observe the same result as the original call.
func replayError(txn *walletdomain.Transaction) error {
	if txn.Status == walletdomain.TransactionStatusFailed &&
		txn.FailureReason == walletdomain.ErrInsufficientFunds.Error() {
		return walletdomain.ErrInsufficientFunds
	}
	return nil
}
