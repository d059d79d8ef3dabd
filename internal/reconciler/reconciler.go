// Package reconciler runs the periodic repair passes: failing wallet
// entries stuck in PROCESSING and flipping past-due invoices to OVERDUE.
package reconciler

import (
	"context"
	"time"

	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Param struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	WalletSvc  walletdomain.Service
	InvoiceSvc invoicedomain.Service
}

type Reconciler struct {
	log *zap.Logger

	interval           time.Duration
	processingDeadline time.Duration
	clock              clock.Clock
	walletSvc          walletdomain.Service
	invoiceSvc         invoicedomain.Service
}

func New(p Param) *Reconciler {
	return &Reconciler{
		log: p.Log.Named("reconciler"),

		interval:           p.Config.Reconciler.Interval,
		processingDeadline: p.Config.Reconciler.ProcessingDeadline,
		clock:              p.Clock,
		walletSvc:          p.WalletSvc,
		invoiceSvc:         p.InvoiceSvc,
	}
}

// RunForever ticks until the context is cancelled.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes one repair pass. Failures are logged and retried on the
// next tick rather than aborting the loop.
func (r *Reconciler) RunOnce(ctx context.Context) {
	resolved, err := r.walletSvc.ResolveStuck(ctx, r.processingDeadline)
	if err != nil {
		r.log.Error("resolving stuck ledger entries failed", zap.Error(err))
	} else if resolved > 0 {
		r.log.Info("stuck ledger entries resolved", zap.Int64("count", resolved))
	}

	overdue, err := r.invoiceSvc.MarkOverdue(ctx, r.clock.Now())
	if err != nil {
		r.log.Error("overdue sweep failed", zap.Error(err))
	} else if overdue > 0 {
		r.log.Info("invoices marked overdue", zap.Int64("count", overdue))
	}
}
