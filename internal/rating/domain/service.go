package domain

import (
	"context"

	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
)

type Service interface {
	// Rate prices one admitted event against the account's plan. The same
	// event rates to the same charge on replay; configuration errors from
	// the pricing layer pass through untouched so callers can park the
	// event.
	Rate(ctx context.Context, account *accountdomain.Account, event *eventdomain.UsageEvent) (*RatedCharge, error)
}
