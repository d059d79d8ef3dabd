// Package domain contains the alert record and the monitor contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AlertType labels a raised alert.
type AlertType string

const (
	AlertTypeLowBalance AlertType = "LOW_BALANCE"
	AlertTypeSuspend    AlertType = "SUSPEND"
	AlertTypeReactivate AlertType = "REACTIVATE"
)

// Alert is one raised notification. The monitor raises at most one
// LOW_BALANCE alert per threshold crossing.
type Alert struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	WalletID  snowflake.ID `gorm:"not null;index"`
	AccountID snowflake.ID `gorm:"not null;index"`
	Type      AlertType    `gorm:"type:text;not null"`
	Balance   int64        `gorm:"not null"`
	Threshold int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }
