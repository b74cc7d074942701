// Package domain contains persistence models for discount vouchers.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// VoucherStatus represents voucher lifecycle states.
type VoucherStatus string

const (
	VoucherStatusNew      VoucherStatus = "NEW"
	VoucherStatusRedeemed VoucherStatus = "REDEEMED"
	VoucherStatusVoid     VoucherStatus = "VOID"
)

// Voucher is a single-use, fixed-amount GTQ discount code.
type Voucher struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	Code           string        `json:"code" gorm:"type:text;not null;uniqueIndex:ux_discount_vouchers_code"`
	BatchID        snowflake.ID  `json:"batch_id" gorm:"not null;index"`
	Amount         float64       `json:"amount" gorm:"not null"`
	Description    string        `json:"description" gorm:"type:text"`
	Status         VoucherStatus `json:"status" gorm:"type:text;not null;default:'NEW'"`
	RedeemedTicket *string       `json:"redeemed_ticket" gorm:"type:text"`
	RedeemedAt     *time.Time    `json:"redeemed_at"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Voucher) TableName() string { return "discount_vouchers" }

// IssueRequest creates a batch of vouchers.
type IssueRequest struct {
	Count       int
	Amount      float64
	Description string
}

// IssueResponse reports the generated batch.
type IssueResponse struct {
	BatchID  snowflake.ID `json:"batch_id"`
	Vouchers []Voucher    `json:"vouchers"`
}

// Service is the discount voucher ledger.
type Service interface {
	Issue(ctx context.Context, req IssueRequest) (IssueResponse, error)
	Lookup(ctx context.Context, code string) (*Voucher, error)
	ListBatch(ctx context.Context, batchID snowflake.ID) ([]Voucher, error)
	Void(ctx context.Context, code string) error

	// PrepareForRedemption returns the voucher only while it is still NEW.
	PrepareForRedemption(ctx context.Context, code string) (*Voucher, error)
	// Redeem flips NEW -> REDEEMED with a guarded update on the provided
	// transaction handle. Zero rows changed means the race was lost and
	// the caller must roll back.
	Redeem(ctx context.Context, tx *gorm.DB, code string, ticketNo string) error
}

// Repository persists vouchers.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, vouchers []*Voucher) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Voucher, error)
	FindByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]Voucher, error)
	// RedeemIfNew performs the conditional status flip and reports
	// whether a row was actually changed.
	RedeemIfNew(ctx context.Context, db *gorm.DB, code string, ticketNo string, redeemedAt time.Time) (bool, error)
	VoidIfNew(ctx context.Context, db *gorm.DB, code string) (bool, error)
}

var (
	ErrNotFound           = errors.New("voucher_not_found")
	ErrVoucherUnavailable = errors.New("voucher_unavailable")
	ErrVoucherRaceLost    = errors.New("voucher_race_lost")
	ErrInvalidIssue       = errors.New("invalid_voucher_issue")
)
