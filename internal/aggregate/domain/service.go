package domain

import (
	"context"
	"errors"
	"time"

	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
)

var (
	ErrNotFound       = errors.New("aggregate_not_found")
	ErrInvalidAccount = errors.New("invalid_account")
	ErrCycleSealed    = errors.New("cycle_sealed")
)

type Service interface {
	// Add folds a rated charge into the account's open aggregate for the
	// charge's cycle, creating the aggregate on first use.
	Add(ctx context.Context, charge *ratingdomain.RatedCharge) error

	// CloseCycle seals the open aggregate covering at. Sealing twice is a
	// no-op that returns the already sealed record.
	CloseCycle(ctx context.Context, accountID string, at time.Time) (*UsageAggregate, error)

	Get(ctx context.Context, aggregateID string) (*UsageAggregate, []*AggregateItem, error)
}
