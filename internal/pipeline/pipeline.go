// Package pipeline drives admitted usage events through rating and on to
// the wallet ledger or the cycle aggregate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	alertdomain "github.com/smallbiznis/tollgate/internal/alert/domain"
	"github.com/smallbiznis/tollgate/internal/config"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("pipeline_queue_full")

type Param struct {
	fx.In

	Log          *zap.Logger
	Config       config.Config
	AccountSvc   accountdomain.Service
	EventSvc     eventdomain.Service
	RatingSvc    ratingdomain.Service
	WalletSvc    walletdomain.Service
	AggregateSvc aggregatedomain.Service
	AlertSvc     alertdomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

// Pipeline fans events out to a fixed worker pool. A worker is picked by
// hashing the account ID, so events for one account process in FIFO order
// while unrelated accounts proceed in parallel.
type Pipeline struct {
	log *zap.Logger

	accountSvc   accountdomain.Service
	eventSvc     eventdomain.Service
	ratingSvc    ratingdomain.Service
	walletSvc    walletdomain.Service
	aggregateSvc aggregatedomain.Service
	alertSvc     alertdomain.Service
	obsMetrics   *obsmetrics.Metrics

	queues []chan *eventdomain.UsageEvent
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func New(p Param) *Pipeline {
	workers := p.Config.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := p.Config.Pipeline.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	queues := make([]chan *eventdomain.UsageEvent, workers)
	for i := range queues {
		queues[i] = make(chan *eventdomain.UsageEvent, queueSize)
	}

	return &Pipeline{
		log: p.Log.Named("pipeline"),

		accountSvc:   p.AccountSvc,
		eventSvc:     p.EventSvc,
		ratingSvc:    p.RatingSvc,
		walletSvc:    p.WalletSvc,
		aggregateSvc: p.AggregateSvc,
		alertSvc:     p.AlertSvc,
		obsMetrics:   p.ObsMetrics,

		queues: queues,
	}
}

// Start launches one goroutine per queue. Workers drain their queue to
// empty before exiting on Stop.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for _, queue := range p.queues {
		p.wg.Add(1)
		go func(queue chan *eventdomain.UsageEvent) {
			defer p.wg.Done()
			for event := range queue {
				p.process(context.Background(), event)
			}
		}(queue)
	}
}

// Stop closes the queues and waits for in-flight events to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Enqueue hands an admitted event to its account's worker. A full queue is
// reported to the producer, which retries with back-off; admission already
// recorded the event so nothing is lost.
func (p *Pipeline) Enqueue(event *eventdomain.UsageEvent) error {
	if event == nil {
		return eventdomain.ErrInvalidEvent
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrQueueFull
	}
	queue := p.queues[workerIndex(event.AccountID.String(), len(p.queues))]
	p.mu.Unlock()

	select {
	case queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func workerIndex(key string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(workers))
}

func (p *Pipeline) process(ctx context.Context, event *eventdomain.UsageEvent) {
	account, err := p.accountSvc.Get(ctx, event.AccountID.String())
	if err != nil {
		p.park(ctx, event, "account_not_found")
		return
	}

	charge, err := p.ratingSvc.Rate(ctx, account, event)
	switch {
	case err == nil:
	case errors.Is(err, pricingdomain.ErrNoActivePricing),
		errors.Is(err, pricingdomain.ErrInvalidRateCard),
		errors.Is(err, pricingdomain.ErrCurrencyMismatch):
		// Configuration faults need manual correction; the event waits
		// parked instead of being dropped or guessed at.
		p.park(ctx, event, err.Error())
		return
	default:
		// Transient rating failure. The event stays RECEIVED and is
		// re-driven by the producer or an operator replay.
		p.log.Error("rating failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	switch account.BillingMode {
	case accountdomain.BillingModePrepaid:
		p.settlePrepaid(ctx, account, event, charge)
	case accountdomain.BillingModePostpaid:
		p.settlePostpaid(ctx, event, charge)
	default:
		p.park(ctx, event, "invalid_billing_mode")
	}
}

// settlePrepaid debits the wallet and re-evaluates alert state. The debit
// reference is derived from the event ID, so a replay of the same event
// cannot double-charge.
func (p *Pipeline) settlePrepaid(ctx context.Context, account *accountdomain.Account, event *eventdomain.UsageEvent, charge *ratingdomain.RatedCharge) {
	if account.WalletID == 0 {
		p.park(ctx, event, "wallet_not_provisioned")
		return
	}

	if charge.Amount > 0 {
		_, err := p.walletSvc.Debit(ctx, walletdomain.ApplyRequest{
			WalletID:    account.WalletID.String(),
			Amount:      charge.Amount,
			ReferenceID: debitReference(event.ID),
			Description: fmt.Sprintf("usage %s", event.Type),
		})
		if errors.Is(err, walletdomain.ErrInsufficientFunds) {
			p.obsMetrics.RecordDebitRejected(ctx, "insufficient_funds")
			p.park(ctx, event, "insufficient_funds")
			p.evaluateAlerts(ctx, account)
			return
		}
		if err != nil {
			p.log.Error("wallet debit failed",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			return
		}
		p.obsMetrics.RecordLedgerEntry(ctx, string(walletdomain.TransactionTypeDebit))
	}

	if err := p.eventSvc.MarkRated(ctx, event.ID); err != nil {
		p.log.Error("mark rated failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	p.evaluateAlerts(ctx, account)
}

func (p *Pipeline) settlePostpaid(ctx context.Context, event *eventdomain.UsageEvent, charge *ratingdomain.RatedCharge) {
	err := p.aggregateSvc.Add(ctx, charge)
	if errors.Is(err, aggregatedomain.ErrCycleSealed) {
		p.park(ctx, event, "cycle_sealed")
		return
	}
	if err != nil {
		p.log.Error("aggregate add failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	if err := p.eventSvc.MarkRated(ctx, event.ID); err != nil {
		p.log.Error("mark rated failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func (p *Pipeline) evaluateAlerts(ctx context.Context, account *accountdomain.Account) {
	wallet, err := p.walletSvc.Get(ctx, account.WalletID.String())
	if err != nil {
		p.log.Error("wallet lookup for alerting failed",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return
	}
	if _, err := p.alertSvc.Evaluate(ctx, wallet); err != nil {
		p.log.Error("alert evaluation failed",
			zap.String("wallet_id", wallet.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) park(ctx context.Context, event *eventdomain.UsageEvent, reason string) {
	if err := p.eventSvc.Park(ctx, event.ID, reason); err != nil {
		p.log.Error("park failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	p.obsMetrics.RecordEventParked(ctx, reason)
	p.log.Warn("event parked",
		zap.String("event_id", event.ID),
		zap.String("reason", reason),
	)
}

// debitReference maps an event to its ledger idempotency handle.
func debitReference(eventID string) string {
	return "usage:" + eventID
}
