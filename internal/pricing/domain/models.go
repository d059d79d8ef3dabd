// Package domain contains persistence models for price plans and rate cards.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ComponentKind decides how a price component turns quantity into money.
type ComponentKind string

const (
	ComponentKindFixed   ComponentKind = "FIXED"
	ComponentKindTier    ComponentKind = "TIER"
	ComponentKindSeat    ComponentKind = "SEAT"
	ComponentKindOverage ComponentKind = "OVERAGE"
)

// RateCard is the pricing container for one plan and currency.
type RateCard struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	PlanID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_rate_cards_plan_currency,priority:1"`
	Currency  string       `gorm:"type:text;not null;uniqueIndex:ux_rate_cards_plan_currency,priority:2"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RateCard) TableName() string { return "rate_cards" }

// RateCardVersion is one immutable revision of a rate card. Validity is the
// half-open interval [ValidFrom, ValidTo); a nil ValidTo means open ended.
type RateCardVersion struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	RateCardID snowflake.ID `gorm:"not null;index"`
	Version    int          `gorm:"not null"`
	ValidFrom  time.Time    `gorm:"not null"`
	ValidTo    *time.Time
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RateCardVersion) TableName() string { return "rate_card_versions" }

// Covers reports whether ts falls inside the version's validity window.
func (v RateCardVersion) Covers(ts time.Time) bool {
	if ts.Before(v.ValidFrom) {
		return false
	}
	if v.ValidTo != nil && !ts.Before(*v.ValidTo) {
		return false
	}
	return true
}

// PriceComponent is one line of a rate card version. UnitAmount and
// FixedAmount are minor units of the rate card currency.
type PriceComponent struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	VersionID        snowflake.ID  `gorm:"not null;index"`
	Code             string        `gorm:"type:text;not null"`
	EventType        string        `gorm:"type:text;not null;index"`
	Kind             ComponentKind `gorm:"type:text;not null"`
	FixedAmount      int64         `gorm:"not null;default:0"`
	UnitAmount       int64         `gorm:"not null;default:0"`
	PerSeatAmount    int64         `gorm:"not null;default:0"`
	IncludedQuantity float64       `gorm:"not null;default:0"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PriceComponent) TableName() string { return "price_components" }

// PriceTier is one cumulative slab of a TIER component. A nil UpTo marks
// the final unbounded slab.
type PriceTier struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ComponentID snowflake.ID `gorm:"not null;index"`
	UpTo        *float64
	UnitAmount  int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PriceTier) TableName() string { return "price_tiers" }

// ResolvedRateCard bundles the version that covers an event timestamp with
// its components and tiers, ready for rating.
type ResolvedRateCard struct {
	Card       RateCard
	Version    RateCardVersion
	Components []*PriceComponent
	Tiers      map[snowflake.ID][]*PriceTier
}
