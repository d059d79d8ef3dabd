package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	alertdomain "github.com/smallbiznis/tollgate/internal/alert/domain"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	gatingdomain "github.com/smallbiznis/tollgate/internal/gating/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/db/option"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	AccountSvc accountdomain.Service
	Gating     gatingdomain.Dispatcher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	gracePeriod time.Duration
	walletrepo  repository.Repository[walletdomain.Wallet]
	alertrepo   repository.Repository[alertdomain.Alert]
	accountSvc  accountdomain.Service
	gating      gatingdomain.Dispatcher
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) alertdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("alert.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		gracePeriod: p.Config.Alert.GracePeriod,
		walletrepo:  repository.ProvideStore[walletdomain.Wallet](p.DB),
		alertrepo:   repository.ProvideStore[alertdomain.Alert](p.DB),
		accountSvc:  p.AccountSvc,
		gating:      p.Gating,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, wallet *walletdomain.Wallet) (alertdomain.Signal, error) {
	if wallet == nil || wallet.ID == 0 {
		return alertdomain.SignalOk, walletdomain.ErrInvalidWallet
	}

	switch {
	case wallet.Balance <= 0:
		return s.evaluateDepleted(ctx, wallet)
	case wallet.LowBalanceThreshold > 0 && wallet.Balance <= wallet.LowBalanceThreshold:
		return s.evaluateBelowThreshold(ctx, wallet)
	default:
		return s.evaluateHealthy(ctx, wallet)
	}
}

// evaluateDepleted handles balance at or below zero: stamp the depletion
// time on first crossing, suspend once the grace window has elapsed.
func (s *Service) evaluateDepleted(ctx context.Context, wallet *walletdomain.Wallet) (alertdomain.Signal, error) {
	now := s.clock.Now()

	if wallet.DepletedAt == nil {
		firstCrossing := !wallet.BelowThreshold
		if err := s.walletrepo.Update(ctx, wallet.ID.String(), map[string]any{
			"below_threshold": true,
			"depleted_at":     now,
			"updated_at":      now,
		}); err != nil {
			return alertdomain.SignalOk, err
		}
		wallet.BelowThreshold = true
		wallet.DepletedAt = &now

		if firstCrossing {
			if err := s.raise(ctx, wallet, alertdomain.AlertTypeLowBalance); err != nil {
				return alertdomain.SignalOk, err
			}
		}
		return alertdomain.SignalLowBalance, nil
	}

	if now.Sub(*wallet.DepletedAt) < s.gracePeriod {
		return alertdomain.SignalOk, nil
	}

	err := s.accountSvc.Suspend(ctx, wallet.AccountID.String(), now)
	if errors.Is(err, accountdomain.ErrAlreadySuspended) {
		return alertdomain.SignalOk, nil
	}
	if err != nil {
		return alertdomain.SignalOk, err
	}

	if err := s.raise(ctx, wallet, alertdomain.AlertTypeSuspend); err != nil {
		return alertdomain.SignalOk, err
	}
	s.gating.Dispatch(ctx, gatingdomain.Notice{
		AccountID: wallet.AccountID.String(),
		Signal:    gatingdomain.SignalSuspend,
		Reason:    "balance_depleted",
		At:        now,
	})
	return alertdomain.SignalSuspend, nil
}

// evaluateBelowThreshold handles a positive balance at or under the low
// balance threshold. A wallet coming back from depletion reactivates even
// though it is still under the threshold.
func (s *Service) evaluateBelowThreshold(ctx context.Context, wallet *walletdomain.Wallet) (alertdomain.Signal, error) {
	now := s.clock.Now()

	if wallet.DepletedAt != nil {
		if err := s.walletrepo.Update(ctx, wallet.ID.String(), map[string]any{
			"below_threshold": true,
			"depleted_at":     nil,
			"updated_at":      now,
		}); err != nil {
			return alertdomain.SignalOk, err
		}
		wallet.BelowThreshold = true
		wallet.DepletedAt = nil
		return s.reactivate(ctx, wallet, now)
	}

	if wallet.BelowThreshold {
		return alertdomain.SignalOk, nil
	}

	if err := s.walletrepo.Update(ctx, wallet.ID.String(), map[string]any{
		"below_threshold": true,
		"updated_at":      now,
	}); err != nil {
		return alertdomain.SignalOk, err
	}
	wallet.BelowThreshold = true

	if err := s.raise(ctx, wallet, alertdomain.AlertTypeLowBalance); err != nil {
		return alertdomain.SignalOk, err
	}
	return alertdomain.SignalLowBalance, nil
}

// evaluateHealthy handles a balance above the threshold: clear crossing
// state and reactivate if the wallet had been depleted.
func (s *Service) evaluateHealthy(ctx context.Context, wallet *walletdomain.Wallet) (alertdomain.Signal, error) {
	if !wallet.BelowThreshold && wallet.DepletedAt == nil {
		return alertdomain.SignalOk, nil
	}

	now := s.clock.Now()
	wasDepleted := wallet.DepletedAt != nil
	if err := s.walletrepo.Update(ctx, wallet.ID.String(), map[string]any{
		"below_threshold": false,
		"depleted_at":     nil,
		"updated_at":      now,
	}); err != nil {
		return alertdomain.SignalOk, err
	}
	wallet.BelowThreshold = false
	wallet.DepletedAt = nil

	if wasDepleted {
		return s.reactivate(ctx, wallet, now)
	}
	return alertdomain.SignalOk, nil
}

// reactivate lifts a suspension after a top-up. Account reactivation is a
// no-op for accounts that were never suspended.
func (s *Service) reactivate(ctx context.Context, wallet *walletdomain.Wallet, now time.Time) (alertdomain.Signal, error) {
	if err := s.accountSvc.Reactivate(ctx, wallet.AccountID.String()); err != nil {
		return alertdomain.SignalOk, err
	}

	if err := s.raise(ctx, wallet, alertdomain.AlertTypeReactivate); err != nil {
		return alertdomain.SignalOk, err
	}
	s.gating.Dispatch(ctx, gatingdomain.Notice{
		AccountID: wallet.AccountID.String(),
		Signal:    gatingdomain.SignalReactivate,
		Reason:    "balance_restored",
		At:        now,
	})
	return alertdomain.SignalReactivate, nil
}

func (s *Service) raise(ctx context.Context, wallet *walletdomain.Wallet, alertType alertdomain.AlertType) error {
	record := &alertdomain.Alert{
		ID:        s.genID.Generate(),
		WalletID:  wallet.ID,
		AccountID: wallet.AccountID,
		Type:      alertType,
		Balance:   wallet.Balance,
		Threshold: wallet.LowBalanceThreshold,
		CreatedAt: s.clock.Now(),
	}
	if err := s.alertrepo.Create(ctx, record); err != nil {
		return err
	}

	s.obsMetrics.RecordAlertRaised(ctx, string(alertType))
	s.log.Info("alert raised",
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("account_id", wallet.AccountID.String()),
		zap.String("type", string(alertType)),
		zap.Int64("balance", wallet.Balance),
	)
	return nil
}

func (s *Service) ListByWallet(ctx context.Context, walletID string) ([]*alertdomain.Alert, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(walletID))
	if err != nil || id == 0 {
		return nil, walletdomain.ErrInvalidWallet
	}

	return s.alertrepo.Find(ctx, &alertdomain.Alert{WalletID: id}, option.WithSortBy(option.QuerySortBy{
		Field: "created_at",
		Desc:  true,
		Allow: map[string]bool{"created_at": true},
	}))
}
