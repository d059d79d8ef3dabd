package service

import (
	"context"
	"math"

	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// gstRateBps is the standard 18% GST rate in basis points.
const gstRateBps = 1800

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

type Service struct {
	log *zap.Logger
}

func NewService(p ServiceParam) taxdomain.Service {
	return &Service{
		log: p.Log.Named("tax.service"),
	}
}

func (s *Service) Compute(ctx context.Context, subtotal int64, jurisdiction taxdomain.Jurisdiction) (taxdomain.Breakdown, error) {
	if subtotal < 0 {
		subtotal = 0
	}

	switch jurisdiction {
	case taxdomain.JurisdictionINGST:
		total := roundMoney(float64(subtotal) * float64(gstRateBps) / 10000)
		// Split from the rounded total so the halves reconcile to it
		// even when it is odd; CGST carries the spare minor unit.
		cgst := (total + 1) / 2
		sgst := total / 2
		return taxdomain.Breakdown{
			Jurisdiction: jurisdiction,
			RateBps:      gstRateBps,
			CGST:         cgst,
			SGST:         sgst,
			Total:        total,
		}, nil
	case taxdomain.JurisdictionINIGST:
		total := roundMoney(float64(subtotal) * float64(gstRateBps) / 10000)
		return taxdomain.Breakdown{
			Jurisdiction: jurisdiction,
			RateBps:      gstRateBps,
			IGST:         total,
			Total:        total,
		}, nil
	default:
		return taxdomain.Breakdown{}, taxdomain.ErrUnsupportedJurisdiction
	}
}

func roundMoney(raw float64) int64 {
	return int64(math.Floor(raw + 0.5))
}
