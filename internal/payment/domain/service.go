package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidSettlement = errors.New("invalid_settlement")
	ErrMissingTarget     = errors.New("settlement_missing_target")
)

// SettlementRequest is the payment gateway's callback payload. Exactly one
// of WalletID or InvoiceID must be set.
type SettlementRequest struct {
	GatewayReference string `json:"gateway_reference"`
	GatewayStatus    string `json:"gateway_status"`
	WalletID         string `json:"wallet_id,omitempty"`
	InvoiceID        string `json:"invoice_id,omitempty"`
	Amount           int64  `json:"amount"`
}

type SettlementResult struct {
	Outcome SettlementOutcome `json:"outcome"`
	Event   *SettlementEvent  `json:"event"`
}

type Service interface {
	// HandleSettlement applies one gateway callback: a successful wallet
	// settlement credits the wallet, a successful invoice settlement marks
	// the invoice paid. Redelivery of a gateway reference returns
	// DUPLICATE without re-applying.
	HandleSettlement(ctx context.Context, req SettlementRequest) (*SettlementResult, error)
}
