// Package domain contains persistence models for prepaid wallets and their
// transaction ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies a ledger entry. REVERSAL entries are the
// compensating postings written by Reverse and cannot themselves be
// reversed.
type TransactionType string

const (
	TransactionTypeCredit   TransactionType = "CREDIT"
	TransactionTypeDebit    TransactionType = "DEBIT"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// TransactionStatus is the ledger entry state machine:
// INITIATED -> PROCESSING -> COMPLETED | FAILED, COMPLETED -> REVERSED.
type TransactionStatus string

const (
	TransactionStatusInitiated  TransactionStatus = "INITIATED"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusReversed   TransactionStatus = "REVERSED"
)

// Wallet holds a prepaid balance in minor units of Currency. BelowThreshold
// and DepletedAt carry the alert monitor's crossing state.
type Wallet struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	AccountID           snowflake.ID `gorm:"not null;index"`
	Currency            string       `gorm:"type:text;not null"`
	Balance             int64        `gorm:"not null;default:0"`
	LowBalanceThreshold int64        `gorm:"not null;default:0"`
	BelowThreshold      bool         `gorm:"not null;default:false"`
	DepletedAt          *time.Time
	CreatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// Transaction is one immutable wallet ledger entry. ReferenceID is the
// caller's idempotency handle, unique per wallet.
type Transaction struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	WalletID      snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_wallet_txn_reference,priority:1"`
	ReferenceID   string            `gorm:"type:text;not null;uniqueIndex:ux_wallet_txn_reference,priority:2"`
	Type          TransactionType   `gorm:"type:text;not null"`
	Status        TransactionStatus `gorm:"type:text;not null;index"`
	Amount        int64             `gorm:"not null"`
	BalanceAfter  int64             `gorm:"not null;default:0"`
	Description   string            `gorm:"type:text"`
	FailureReason string            `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "wallet_transactions" }
