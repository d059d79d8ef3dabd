package migration

import (
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	alertdomain "github.com/smallbiznis/tollgate/internal/alert/domain"
	"github.com/smallbiznis/tollgate/internal/config"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/tollgate/internal/pricing/domain"
	ratingdomain "github.com/smallbiznis/tollgate/internal/rating/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// SQLite and MySQL deployments are development setups; gorm derives
		// the schema from the models there.
		return conn.AutoMigrate(
			&accountdomain.Account{},
			&eventdomain.UsageEvent{},
			&pricingdomain.RateCard{},
			&pricingdomain.RateCardVersion{},
			&pricingdomain.PriceComponent{},
			&pricingdomain.PriceTier{},
			&ratingdomain.RatedCharge{},
			&walletdomain.Wallet{},
			&walletdomain.Transaction{},
			&aggregatedomain.UsageAggregate{},
			&aggregatedomain.AggregateItem{},
			&invoicedomain.Invoice{},
			&invoicedomain.InvoiceLine{},
			&alertdomain.Alert{},
			&paymentdomain.SettlementEvent{},
		)
	}),
)
