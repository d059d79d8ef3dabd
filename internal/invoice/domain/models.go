// Package domain contains persistence models for invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
)

// InvoiceStatus transitions DRAFT -> PENDING -> PAID | OVERDUE.
// CANCELLED is reachable from DRAFT and PENDING only.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is generated from exactly one sealed aggregate; the unique
// AggregateID makes regeneration return the original document.
// All money fields are minor units of Currency.
type Invoice struct {
	ID           snowflake.ID           `gorm:"primaryKey"`
	Number       string                 `gorm:"type:text;not null;uniqueIndex:ux_invoices_number"`
	AccountID    snowflake.ID           `gorm:"not null;index"`
	AggregateID  snowflake.ID           `gorm:"not null;uniqueIndex:ux_invoices_aggregate"`
	Currency     string                 `gorm:"type:text;not null"`
	Jurisdiction taxdomain.Jurisdiction `gorm:"type:text;not null"`
	Subtotal     int64                  `gorm:"not null"`
	TaxCGST      int64                  `gorm:"not null;default:0"`
	TaxSGST      int64                  `gorm:"not null;default:0"`
	TaxIGST      int64                  `gorm:"not null;default:0"`
	TaxTotal     int64                  `gorm:"not null;default:0"`
	Total        int64                  `gorm:"not null"`
	Status       InvoiceStatus          `gorm:"type:text;not null;index"`
	IssuedAt     *time.Time
	DueAt        *time.Time
	PaidAt       *time.Time
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one aggregate component carried onto the invoice.
type InvoiceLine struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	InvoiceID     snowflake.ID `gorm:"not null;index"`
	ComponentCode string       `gorm:"type:text;not null"`
	Quantity      float64      `gorm:"not null"`
	Amount        int64        `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }
