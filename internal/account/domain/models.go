// Package domain contains persistence models for billing accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingMode decides whether charges hit the wallet or the cycle aggregate.
type BillingMode string

const (
	BillingModePrepaid  BillingMode = "PREPAID"
	BillingModePostpaid BillingMode = "POSTPAID"
)

// AccountStatus tracks service gating state.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account ties a customer to a price plan, a wallet and a billing mode.
type Account struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	Name        string        `gorm:"type:text;not null"`
	BillingMode BillingMode   `gorm:"type:text;not null"`
	PlanID      snowflake.ID  `gorm:"not null;index"`
	WalletID    snowflake.ID  `gorm:"index"`
	Currency    string        `gorm:"type:text;not null"`
	SeatCount   int64         `gorm:"not null;default:1"`
	Status      AccountStatus `gorm:"type:text;not null;default:ACTIVE"`
	SuspendedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }
