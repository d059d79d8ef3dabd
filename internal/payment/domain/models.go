// Package domain contains the settlement record consumed from the payment
// gateway collaborator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SettlementStatus is the gateway's verdict for one settlement.
type SettlementStatus string

const (
	SettlementStatusSucceeded SettlementStatus = "SUCCEEDED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// SettlementOutcome records how the settlement was applied locally.
type SettlementOutcome string

const (
	SettlementOutcomeApplied   SettlementOutcome = "APPLIED"
	SettlementOutcomeDuplicate SettlementOutcome = "DUPLICATE"
	SettlementOutcomeIgnored   SettlementOutcome = "IGNORED"
)

// SettlementEvent is one inbound gateway callback. The unique
// GatewayReference makes redelivery a no-op.
type SettlementEvent struct {
	ID               snowflake.ID     `gorm:"primaryKey"`
	GatewayReference string           `gorm:"type:text;not null;uniqueIndex:ux_settlement_events_reference"`
	GatewayStatus    SettlementStatus `gorm:"type:text;not null"`
	WalletID         snowflake.ID     `gorm:"index"`
	InvoiceID        snowflake.ID     `gorm:"index"`
	Amount           int64            `gorm:"not null"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SettlementEvent) TableName() string { return "settlement_events" }
