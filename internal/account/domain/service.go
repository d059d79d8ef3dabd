package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account_not_found")
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidBillingMode = errors.New("invalid_billing_mode")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrAlreadySuspended   = errors.New("account_already_suspended")
)

type CreateAccountRequest struct {
	Name        string      `json:"name"`
	BillingMode BillingMode `json:"billing_mode"`
	PlanID      string      `json:"plan_id"`
	Currency    string      `json:"currency"`
	SeatCount   int64       `json:"seat_count"`
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (*Account, error)
	Get(ctx context.Context, accountID string) (*Account, error)
	Suspend(ctx context.Context, accountID string, at time.Time) error
	Reactivate(ctx context.Context, accountID string) error
}
