package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	WalletSvc walletdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	accountrepo repository.Repository[accountdomain.Account]
	walletSvc   walletdomain.Service
}

func NewService(p ServiceParam) accountdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("account.service"),

		genID:       p.GenID,
		accountrepo: repository.ProvideStore[accountdomain.Account](p.DB),
		walletSvc:   p.WalletSvc,
	}
}

var supportedCurrencies = map[string]bool{
	"USD": true,
	"INR": true,
	"IDR": true,
}

func (s *Service) Create(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, accountdomain.ErrInvalidAccount
	}

	switch req.BillingMode {
	case accountdomain.BillingModePrepaid, accountdomain.BillingModePostpaid:
	default:
		return nil, accountdomain.ErrInvalidBillingMode
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !supportedCurrencies[currency] {
		return nil, accountdomain.ErrInvalidCurrency
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, accountdomain.ErrInvalidAccount
	}

	seatCount := req.SeatCount
	if seatCount <= 0 {
		seatCount = 1
	}

	now := time.Now().UTC()
	record := &accountdomain.Account{
		ID:          s.genID.Generate(),
		Name:        name,
		BillingMode: req.BillingMode,
		PlanID:      planID,
		Currency:    currency,
		SeatCount:   seatCount,
		Status:      accountdomain.AccountStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Prepaid accounts charge a wallet, so one is provisioned up front.
	if req.BillingMode == accountdomain.BillingModePrepaid {
		wallet, err := s.walletSvc.Create(ctx, walletdomain.CreateWalletRequest{
			AccountID: record.ID.String(),
			Currency:  currency,
		})
		if err != nil {
			return nil, err
		}
		record.WalletID = wallet.ID
	}

	if err := s.accountrepo.Create(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *Service) Get(ctx context.Context, accountID string) (*accountdomain.Account, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil || id == 0 {
		return nil, accountdomain.ErrInvalidAccount
	}

	record, err := s.accountrepo.FindOne(ctx, &accountdomain.Account{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, accountdomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) Suspend(ctx context.Context, accountID string, at time.Time) error {
	record, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if record.Status == accountdomain.AccountStatusSuspended {
		return accountdomain.ErrAlreadySuspended
	}

	at = at.UTC()
	return s.accountrepo.Update(ctx, record.ID.String(), map[string]any{
		"status":       accountdomain.AccountStatusSuspended,
		"suspended_at": at,
		"updated_at":   time.Now().UTC(),
	})
}

func (s *Service) Reactivate(ctx context.Context, accountID string) error {
	record, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if record.Status == accountdomain.AccountStatusActive {
		return nil
	}

	return s.accountrepo.Update(ctx, record.ID.String(), map[string]any{
		"status":       accountdomain.AccountStatusActive,
		"suspended_at": nil,
		"updated_at":   time.Now().UTC(),
	})
}
