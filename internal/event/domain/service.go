package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tollgate/pkg/db/pagination"
)

var (
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidTimestamp = errors.New("invalid_timestamp")
	ErrEventNotFound    = errors.New("event_not_found")
)

type RecordEventRequest struct {
	ID         string         `json:"id"`
	AccountID  string         `json:"account_id"`
	Type       string         `json:"type"`
	Quantity   float64        `json:"quantity"`
	OccurredAt time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

type ListEventsRequest struct {
	AccountID string
	Status    string
	PageToken string
	PageSize  int
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []*UsageEvent `json:"events"`
}

type Service interface {
	Record(ctx context.Context, req RecordEventRequest) (*UsageEvent, error)
	Get(ctx context.Context, eventID string) (*UsageEvent, error)
	Park(ctx context.Context, eventID, reason string) error
	MarkRated(ctx context.Context, eventID string) error
	List(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)
}
