// Package domain contains persistence models for rated charges.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
)

// RatedCharge is the priced outcome of one usage event. Amount is minor
// units of Currency, rounded half-up once at the end of the computation.
// OccurredAt is the event's occurrence time and decides which billing
// cycle the charge belongs to; RatedAt only records when rating ran.
type RatedCharge struct {
	ID            snowflake.ID                `gorm:"primaryKey"`
	EventID       string                      `gorm:"type:text;not null;index"`
	AccountID     snowflake.ID                `gorm:"not null;index:idx_rated_charges_usage,priority:1"`
	ComponentCode string                      `gorm:"type:text;not null;index:idx_rated_charges_usage,priority:2"`
	Kind          pricingdomain.ComponentKind `gorm:"type:text;not null"`
	Currency      string                      `gorm:"type:text;not null"`
	Quantity      float64                     `gorm:"not null"`
	Amount        int64                       `gorm:"not null"`
	OccurredAt    time.Time                   `gorm:"not null;index:idx_rated_charges_usage,priority:3"`
	RatedAt       time.Time                   `gorm:"not null"`
	Checksum      string                      `gorm:"type:text;not null;uniqueIndex:ux_rated_charges_checksum"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RatedCharge) TableName() string { return "rated_charges" }
