// Package domain defines the contract for the external service-gating
// collaborator that enforces suspension decisions.
package domain

import (
	"context"
	"time"
)

// Signal is the gating instruction for an account.
type Signal string

const (
	SignalSuspend    Signal = "SUSPEND"
	SignalReactivate Signal = "REACTIVATE"
)

// Outcome classifies a dispatch so the caller can decide whether to retry.
type Outcome string

const (
	OutcomeOk        Outcome = "OK"
	OutcomeRetryable Outcome = "RETRYABLE"
	OutcomeFatal     Outcome = "FATAL"
)

// Notice is one suspend or reactivate notification keyed by account ID.
type Notice struct {
	AccountID string    `json:"account_id"`
	Signal    Signal    `json:"signal"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Dispatcher interface {
	// Dispatch delivers the notice to the gating endpoint. The outcome is a
	// result, not an error; RETRYABLE notices are re-driven by the caller.
	Dispatch(ctx context.Context, notice Notice) Outcome
}
