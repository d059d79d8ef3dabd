// Package domain defines the event admission contract.
package domain

import (
	"context"
	"errors"
	"time"
)

// Decision is the outcome of admitting an event into the pipeline.
type Decision string

const (
	DecisionAccepted  Decision = "ACCEPTED"
	DecisionDuplicate Decision = "DUPLICATE"
	DecisionRejected  Decision = "REJECTED"
)

// ErrStoreUnavailable signals the admission store could not be reached.
// Callers retry with back-off; the event is neither accepted nor dropped.
var ErrStoreUnavailable = errors.New("admission_store_unavailable")

type AdmitRequest struct {
	EventID    string
	AccountID  string
	Type       string
	Quantity   float64
	OccurredAt time.Time
}

type AdmitResult struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

type Service interface {
	Admit(ctx context.Context, req AdmitRequest) (AdmitResult, error)

	// Release drops the admission claim for an event that was accepted but
	// never made it into the pipeline. The producer's retry with the same
	// ID is then admitted again instead of answered as a duplicate.
	Release(ctx context.Context, eventID string) error
}
