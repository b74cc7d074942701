// Package domain defines the settlement workflow contract: one
// request turns an OPEN ticket into a closed ticket with an invoice
// row and, when payment was confirmed, a gate release.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvoiceStatus represents the fiscal outcome of one settlement.
type InvoiceStatus string

const (
	InvoiceStatusCertified InvoiceStatus = "CERTIFIED"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
	InvoiceStatusGratis    InvoiceStatus = "GRATIS"
)

// Invoice is one row per settlement attempt that reached persistence.
// Total is the net amount after discount and is never negative; a zero
// total always means a grace settlement with no certification UUID.
type Invoice struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	TicketNo       string         `json:"ticket_no" gorm:"type:text;not null;index"`
	Total          float64        `json:"total" gorm:"not null"`
	UUID           *string        `json:"uuid" gorm:"type:text;index"`
	Status         InvoiceStatus  `json:"status" gorm:"type:text;not null;index"`
	BillingMode    string         `json:"billing_mode" gorm:"type:text;not null"`
	AmountSource   string         `json:"amount_source" gorm:"type:text;not null;default:'backend'"`
	DurationMin    int            `json:"duration_min" gorm:"not null;default:0"`
	HoursBilled    int            `json:"hours_billed" gorm:"not null;default:0"`
	HourlyRate     *float64       `json:"hourly_rate"`
	MonthlyRate    *float64       `json:"monthly_rate"`
	DiscountCode   *string        `json:"discount_code" gorm:"type:text"`
	DiscountAmount float64        `json:"discount_amount" gorm:"not null;default:0"`
	ReceptorNIT    string         `json:"receptor_nit" gorm:"type:text;not null"`
	EntryAt        time.Time      `json:"entry_at" gorm:"not null"`
	ExitAt         time.Time      `json:"exit_at" gorm:"not null"`
	CertError      *string        `json:"cert_error" gorm:"type:text"`
	RawRequest     datatypes.JSON `json:"raw_request"`
	RawResponse    datatypes.JSON `json:"raw_response"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// SettleRequest is the caller's billing choice for one ticket.
type SettleRequest struct {
	TicketNo     string  `json:"ticket_no"`
	Mode         string  `json:"mode"`
	VoucherCode  string  `json:"voucher_code"`
	CustomAmount float64 `json:"custom_amount"`

	// Client overrides for the hourly mode. When both duration and
	// rate are present they replace the server computation; a supplied
	// total wins over everything. The chosen source is recorded on the
	// invoice.
	ClientDurationMin *int     `json:"client_duration_min"`
	ClientHourlyRate  *float64 `json:"client_hourly_rate"`
	ClientTotal       *float64 `json:"client_total"`
}

// SettleResult is the definite outcome returned to the caller.
type SettleResult struct {
	InvoiceID          snowflake.ID           `json:"invoice_id"`
	TicketNo           string                 `json:"ticket_no"`
	Status             InvoiceStatus          `json:"status"`
	Certified          bool                   `json:"certified"`
	UUID               *string                `json:"uuid"`
	BillingMode        string                 `json:"billing_mode"`
	NetTotal           float64                `json:"net_total"`
	DiscountApplied    float64                `json:"discount_applied"`
	ManualOpenRequired bool                   `json:"manual_open_required"`
	Notifier           *gatedomain.NotifyResult `json:"notifier,omitempty"`
}

// ListRequest filters invoice reads.
type ListRequest struct {
	TicketNo string
	Status   InvoiceStatus
	Limit    int
}

// Service coordinates pricing, discounting, certification, persistence
// and gate release for one ticket at a time.
type Service interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, error)
	// ReceiptPDF returns the certified fiscal PDF when one exists, or a
	// locally rendered receipt otherwise.
	ReceiptPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
}

// Repository persists invoices.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	Find(ctx context.Context, db *gorm.DB, req ListRequest) ([]Invoice, error)
}

// ReceiptRenderer produces a local receipt document for invoices the
// certifier did not (or could not) supply a PDF for.
type ReceiptRenderer interface {
	Render(invoice Invoice) ([]byte, error)
}

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvalidReceptorNIT   = errors.New("invalid_receptor_nit")
	ErrSettlementInProgress = errors.New("settlement_in_progress")
)
