package service

import (
	"context"
	"testing"

	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService() taxdomain.Service {
	return NewService(ServiceParam{Log: zap.NewNop()})
}

func TestComputeGSTSplitsEvenTotal(t *testing.T) {
	svc := newTestService()

	// 1000.00 at 9% + 9% must come out at exactly 180.00.
	breakdown, err := svc.Compute(context.Background(), 100000, taxdomain.JurisdictionINGST)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), breakdown.Total)
	assert.Equal(t, int64(9000), breakdown.CGST)
	assert.Equal(t, int64(9000), breakdown.SGST)
	assert.Equal(t, int64(0), breakdown.IGST)
}

func TestComputeGSTOddTotalReconciles(t *testing.T) {
	svc := newTestService()

	// 0.75 * 18% = 0.135 -> rounds half-up to 14 paise, an odd total.
	breakdown, err := svc.Compute(context.Background(), 75, taxdomain.JurisdictionINGST)
	require.NoError(t, err)
	assert.Equal(t, int64(14), breakdown.Total)
	assert.Equal(t, int64(7), breakdown.CGST)
	assert.Equal(t, int64(7), breakdown.SGST)

	// 0.25 * 18% = 0.045 -> 5 paise; CGST carries the spare unit.
	breakdown, err = svc.Compute(context.Background(), 25, taxdomain.JurisdictionINGST)
	require.NoError(t, err)
	assert.Equal(t, int64(5), breakdown.Total)
	assert.Equal(t, int64(3), breakdown.CGST)
	assert.Equal(t, int64(2), breakdown.SGST)
	assert.Equal(t, breakdown.Total, breakdown.CGST+breakdown.SGST)
}

func TestComputeIGSTFullRate(t *testing.T) {
	svc := newTestService()

	breakdown, err := svc.Compute(context.Background(), 100000, taxdomain.JurisdictionINIGST)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), breakdown.IGST)
	assert.Equal(t, int64(18000), breakdown.Total)
	assert.Equal(t, int64(0), breakdown.CGST)
	assert.Equal(t, int64(0), breakdown.SGST)
}

func TestComputeUnsupportedJurisdiction(t *testing.T) {
	svc := newTestService()

	_, err := svc.Compute(context.Background(), 1000, taxdomain.Jurisdiction("US-CA"))
	assert.ErrorIs(t, err, taxdomain.ErrUnsupportedJurisdiction)
}

func TestComputeZeroAndNegativeSubtotal(t *testing.T) {
	svc := newTestService()

	breakdown, err := svc.Compute(context.Background(), 0, taxdomain.JurisdictionINGST)
	require.NoError(t, err)
	assert.Equal(t, int64(0), breakdown.Total)

	breakdown, err = svc.Compute(context.Background(), -500, taxdomain.JurisdictionINGST)
	require.NoError(t, err)
	assert.Equal(t, int64(0), breakdown.Total)
}
