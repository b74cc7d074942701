// Package domain contains persistence models for parking tickets.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TicketStatus represents ticket lifecycle states.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Ticket represents a parked vehicle. A ticket is mutated exactly once,
// by settlement, which closes it and fills exit_at when absent.
type Ticket struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	TicketNo    string       `json:"ticket_no" gorm:"type:text;not null;uniqueIndex:ux_tickets_ticket_no"`
	Plate       string       `json:"plate" gorm:"type:text;not null"`
	Status      TicketStatus `json:"status" gorm:"type:text;not null;default:'OPEN'"`
	EntryAt     time.Time    `json:"entry_at" gorm:"not null"`
	ExitAt      *time.Time   `json:"exit_at"`
	ReceptorNIT string       `json:"receptor_nit" gorm:"type:text;not null;default:'CF'"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Ticket) TableName() string { return "tickets" }

// PaymentRecord holds the external billing reference captured during
// ticket ingestion and consumed by gate notification.
type PaymentRecord struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TicketNo   string       `json:"ticket_no" gorm:"type:text;not null;index"`
	Plate      string       `json:"plate" gorm:"type:text;not null"`
	Billin     float64      `json:"billin" gorm:"not null;default:0"`
	BillinJSON string       `json:"billin_json" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payments" }

// Repository persists tickets.
type Repository interface {
	FindByNo(ctx context.Context, db *gorm.DB, ticketNo string) (*Ticket, error)
	Create(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	// Close marks an OPEN ticket CLOSED, filling exit_at when absent.
	// Returns whether a row was actually changed.
	Close(ctx context.Context, db *gorm.DB, ticketNo string, exitAt time.Time) (bool, error)
}

// PaymentRepository supplies the external billing record per ticket.
type PaymentRepository interface {
	FindByTicket(ctx context.Context, db *gorm.DB, ticketNo string) (*PaymentRecord, error)
	Create(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
}

var (
	ErrNotFound      = errors.New("ticket_not_found")
	ErrAlreadyClosed = errors.New("ticket_already_closed")
	ErrTicketExists  = errors.New("ticket_exists")
)
