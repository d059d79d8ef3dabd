package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/clock"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	WalletSvc  walletdomain.Service
	InvoiceSvc invoicedomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID          *snowflake.Node
	clock          clock.Clock
	settlementrepo repository.Repository[paymentdomain.SettlementEvent]
	walletSvc      walletdomain.Service
	invoiceSvc     invoicedomain.Service
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:          p.GenID,
		clock:          p.Clock,
		settlementrepo: repository.ProvideStore[paymentdomain.SettlementEvent](p.DB),
		walletSvc:      p.WalletSvc,
		invoiceSvc:     p.InvoiceSvc,
	}
}

func (s *Service) HandleSettlement(ctx context.Context, req paymentdomain.SettlementRequest) (*paymentdomain.SettlementResult, error) {
	reference := strings.TrimSpace(req.GatewayReference)
	if len(reference) < walletdomain.MinReferenceIDLength || len(reference) > walletdomain.MaxReferenceIDLength {
		return nil, paymentdomain.ErrInvalidSettlement
	}

	var status paymentdomain.SettlementStatus
	switch paymentdomain.SettlementStatus(strings.ToUpper(strings.TrimSpace(req.GatewayStatus))) {
	case paymentdomain.SettlementStatusSucceeded:
		status = paymentdomain.SettlementStatusSucceeded
	case paymentdomain.SettlementStatusFailed:
		status = paymentdomain.SettlementStatusFailed
	default:
		return nil, paymentdomain.ErrInvalidSettlement
	}

	walletID, _ := snowflake.ParseString(strings.TrimSpace(req.WalletID))
	invoiceID, _ := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if (walletID == 0) == (invoiceID == 0) {
		return nil, paymentdomain.ErrMissingTarget
	}
	if walletID != 0 && req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidSettlement
	}

	record := &paymentdomain.SettlementEvent{
		ID:               s.genID.Generate(),
		GatewayReference: reference,
		GatewayStatus:    status,
		WalletID:         walletID,
		InvoiceID:        invoiceID,
		Amount:           req.Amount,
		CreatedAt:        s.clock.Now(),
	}

	// Redelivered callbacks land on the gateway reference and are dropped;
	// the first-seen record stays authoritative.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, result.Error
	}

	outcome := paymentdomain.SettlementOutcomeApplied
	if result.RowsAffected == 0 {
		existing, err := s.settlementrepo.FindOne(ctx, &paymentdomain.SettlementEvent{GatewayReference: reference})
		if err != nil {
			return nil, err
		}
		record = existing
		outcome = paymentdomain.SettlementOutcomeDuplicate
	}

	if record.GatewayStatus != paymentdomain.SettlementStatusSucceeded {
		if outcome == paymentdomain.SettlementOutcomeApplied {
			outcome = paymentdomain.SettlementOutcomeIgnored
		}
		return &paymentdomain.SettlementResult{Outcome: outcome, Event: record}, nil
	}

	// Side effects are idempotent, so they run on redelivery too: a wallet
	// credit replays by reference and a paid invoice stays paid. A crash
	// between the insert and here is healed by the gateway's retry.
	if record.WalletID != 0 {
		if _, err := s.walletSvc.Credit(ctx, walletdomain.ApplyRequest{
			WalletID:    record.WalletID.String(),
			Amount:      record.Amount,
			ReferenceID: record.GatewayReference,
			Description: "gateway settlement",
		}); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.invoiceSvc.MarkPaid(ctx, record.InvoiceID.String(), s.clock.Now()); err != nil {
			return nil, err
		}
	}

	s.log.Info("settlement processed",
		zap.String("gateway_reference", record.GatewayReference),
		zap.String("outcome", string(outcome)),
	)
	return &paymentdomain.SettlementResult{Outcome: outcome, Event: record}, nil
}
