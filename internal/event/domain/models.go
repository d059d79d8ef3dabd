// Package domain contains persistence models for raw usage events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventStatus tracks an event through the metering pipeline.
type EventStatus string

const (
	EventStatusReceived EventStatus = "RECEIVED"
	EventStatusRated    EventStatus = "RATED"
	EventStatusParked   EventStatus = "PARKED"
)

// UsageEvent stores a single unit of metered activity. The ID is assigned by
// the producer and doubles as the idempotency key.
type UsageEvent struct {
	ID          string            `gorm:"primaryKey;type:text"`
	AccountID   snowflake.ID      `gorm:"not null;index"`
	Type        string            `gorm:"type:text;not null"`
	Quantity    float64           `gorm:"not null"`
	OccurredAt  time.Time         `gorm:"not null"`
	Status      EventStatus       `gorm:"type:text;not null;index"`
	ParkReason  string            `gorm:"type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
