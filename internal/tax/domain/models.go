// Package domain defines tax jurisdictions and breakdowns.
package domain

import (
	"context"
	"errors"
)

// Jurisdiction selects the tax regime applied to an invoice.
type Jurisdiction string

const (
	// JurisdictionINGST is Indian intra-state GST: the rate splits into
	// equal CGST and SGST halves.
	JurisdictionINGST Jurisdiction = "IN-GST"
	// JurisdictionINIGST is Indian inter-state GST: the full rate is
	// levied as IGST.
	JurisdictionINIGST Jurisdiction = "IN-IGST"
)

var ErrUnsupportedJurisdiction = errors.New("unsupported_jurisdiction")

// Breakdown carries tax amounts in minor units. Total is rounded once;
// the CGST/SGST halves always sum back to Total.
type Breakdown struct {
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	RateBps      int64        `json:"rate_bps"`
	CGST         int64        `json:"cgst"`
	SGST         int64        `json:"sgst"`
	IGST         int64        `json:"igst"`
	Total        int64        `json:"total"`
}

type Service interface {
	// Compute taxes a rounded subtotal. The subtotal is minor units;
	// so is every field of the breakdown.
	Compute(ctx context.Context, subtotal int64, jurisdiction Jurisdiction) (Breakdown, error)
}
