package domain

import (
	"context"
	"errors"
	"time"

	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
)

var (
	ErrNotFound          = errors.New("invoice_not_found")
	ErrInvalidInvoice    = errors.New("invalid_invoice")
	ErrAggregateNotOpen  = errors.New("aggregate_not_sealed")
	ErrInvalidTransition = errors.New("invalid_invoice_transition")
)

type GenerateRequest struct {
	AggregateID  string                 `json:"aggregate_id"`
	Jurisdiction taxdomain.Jurisdiction `json:"jurisdiction"`
}

type Service interface {
	// Generate builds a DRAFT invoice from a sealed aggregate. Calling it
	// again for the same aggregate returns the original invoice.
	Generate(ctx context.Context, req GenerateRequest) (*Invoice, error)

	Get(ctx context.Context, invoiceID string) (*Invoice, []*InvoiceLine, error)

	// Issue moves DRAFT to PENDING and stamps the due date.
	Issue(ctx context.Context, invoiceID string) (*Invoice, error)

	// MarkPaid settles a PENDING or OVERDUE invoice. Settling a PAID
	// invoice again is a no-op.
	MarkPaid(ctx context.Context, invoiceID string, at time.Time) (*Invoice, error)

	// Cancel voids a DRAFT or PENDING invoice.
	Cancel(ctx context.Context, invoiceID string) (*Invoice, error)

	// MarkOverdue flips PENDING invoices past their due date to OVERDUE
	// and reports how many moved.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
