package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNoActivePricing  = errors.New("no_active_pricing")
	ErrInvalidRateCard  = errors.New("invalid_rate_card")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

type Service interface {
	// Resolve returns the single rate card version effective for the plan
	// and currency at ts. Zero matching versions is ErrNoActivePricing;
	// more than one is ErrInvalidRateCard.
	Resolve(ctx context.Context, planID snowflake.ID, currency string, ts time.Time) (*ResolvedRateCard, error)
}
