package domain

import (
	"context"

	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
)

// Signal is the monitor's decision for one evaluation.
type Signal string

const (
	SignalOk         Signal = "OK"
	SignalLowBalance Signal = "LOW_BALANCE_ALERT"
	SignalSuspend    Signal = "SUSPEND_SERVICE"
	SignalReactivate Signal = "REACTIVATE"
)

type Service interface {
	// Evaluate inspects the wallet after a balance change. It raises one
	// alert per threshold crossing, suspends the account once the balance
	// has been depleted past the grace window, and reactivates after a
	// top-up brings the balance back above zero.
	Evaluate(ctx context.Context, wallet *walletdomain.Wallet) (Signal, error)

	// ListByWallet returns raised alerts, newest first.
	ListByWallet(ctx context.Context, walletID string) ([]*Alert, error)
}
