// Package domain contains persistence models for postpaid cycle aggregates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
)

// AggregateStatus is OPEN while charges accumulate; SEALED aggregates are
// immutable and the only valid input for invoicing.
type AggregateStatus string

const (
	AggregateStatusOpen   AggregateStatus = "OPEN"
	AggregateStatusSealed AggregateStatus = "SEALED"
)

// UsageAggregate accumulates one account's rated charges for one cycle.
type UsageAggregate struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	AccountID  snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_usage_aggregates_cycle,priority:1"`
	CycleStart time.Time       `gorm:"not null;uniqueIndex:ux_usage_aggregates_cycle,priority:2"`
	CycleEnd   time.Time       `gorm:"not null"`
	Currency   string          `gorm:"type:text;not null"`
	Status     AggregateStatus `gorm:"type:text;not null;index"`
	SealedAt   *time.Time
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageAggregate) TableName() string { return "usage_aggregates" }

// AggregateItem is the running per-component total inside an aggregate.
type AggregateItem struct {
	ID            snowflake.ID                `gorm:"primaryKey"`
	AggregateID   snowflake.ID                `gorm:"not null;index;uniqueIndex:ux_aggregate_items_component,priority:1"`
	ComponentCode string                      `gorm:"type:text;not null;uniqueIndex:ux_aggregate_items_component,priority:2"`
	Kind          pricingdomain.ComponentKind `gorm:"type:text;not null"`
	Quantity      float64                     `gorm:"not null;default:0"`
	Amount        int64                       `gorm:"not null;default:0"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AggregateItem) TableName() string { return "aggregate_items" }
