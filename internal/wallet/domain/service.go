package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tollgate/pkg/db/pagination"
)

var (
	ErrNotFound            = errors.New("wallet_not_found")
	ErrInvalidWallet       = errors.New("invalid_wallet")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReference    = errors.New("invalid_reference_id")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrNotReversible       = errors.New("transaction_not_reversible")
)

// Reference IDs are caller-supplied idempotency handles; a floor on their
// length keeps accidental collisions out of the ledger.
const (
	MinReferenceIDLength = 8
	MaxReferenceIDLength = 64
)

type CreateWalletRequest struct {
	AccountID           string `json:"account_id"`
	Currency            string `json:"currency"`
	LowBalanceThreshold int64  `json:"low_balance_threshold"`
}

type ApplyRequest struct {
	WalletID    string `json:"-"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
}

type ListTransactionsRequest struct {
	WalletID  string
	Type      string
	Status    string
	From      time.Time
	To        time.Time
	PageToken string
	PageSize  int
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []*Transaction `json:"transactions"`
}

type Service interface {
	Create(ctx context.Context, req CreateWalletRequest) (*Wallet, error)
	Get(ctx context.Context, walletID string) (*Wallet, error)

	// Credit adds funds. Credits never fail for funds; a replayed
	// ReferenceID returns the original entry without re-mutating.
	Credit(ctx context.Context, req ApplyRequest) (*Transaction, error)

	// Debit removes funds atomically. A debit that would overdraw fails
	// whole with ErrInsufficientFunds and leaves the balance untouched.
	Debit(ctx context.Context, req ApplyRequest) (*Transaction, error)

	// Reverse returns a COMPLETED entry's amount to the wallet and marks
	// the entry REVERSED.
	Reverse(ctx context.Context, walletID, transactionID string) (*Transaction, error)

	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)

	// ResolveStuck fails PROCESSING entries older than the deadline so a
	// crashed writer cannot wedge the ledger.
	ResolveStuck(ctx context.Context, deadline time.Duration) (int64, error)
}
