// Package domain defines gate-control contracts and models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// NotifyOutcome is one raw exchange with the gate controller.
type NotifyOutcome struct {
	Endpoint   string
	Payload    string
	HTTPStatus int
	AckCode    string
	Raw        []byte
}

// OpenResult is the controller verdict for a channel open.
type OpenResult struct {
	OK         bool
	HTTPStatus int
	Code       string
	Message    string
	Raw        []byte
}

// Controller is the remote gate-control service.
type Controller interface {
	OpenChannel(ctx context.Context, channelID string) (OpenResult, error)
	PayNotify(ctx context.Context, carNumber, recordID, paymentType string) (NotifyOutcome, error)
}

// Attempt is one logged notification try. Attempts are audit material,
// not relational state.
type Attempt struct {
	Number       int    `json:"attempt_number"`
	Endpoint     string `json:"endpoint"`
	Payload      string `json:"payload"`
	HTTPStatus   int    `json:"http_status"`
	Sent         bool   `json:"sent"`
	Acknowledged bool   `json:"acknowledged"`
	Error        string `json:"error,omitempty"`
}

// NotifyResult is what the settlement workflow acts on. Sent,
// Acknowledged, HTTPStatus and RawResponse always describe attempt 1.
type NotifyResult struct {
	Sent               bool
	Acknowledged       bool
	HTTPStatus         int
	Error              string
	RawResponse        []byte
	ManualOpenRequired bool
	Attempts           []Attempt
}

// ManualOpenLog records a human-triggered (or grace) gate release.
type ManualOpenLog struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	ChannelID     string       `json:"channel_id" gorm:"type:text;not null"`
	OpenedAt      time.Time    `json:"opened_at" gorm:"not null"`
	Reason        string       `json:"reason" gorm:"type:text;not null"`
	HTTPStatus    int          `json:"http_status" gorm:"not null;default:0"`
	ResultCode    string       `json:"result_code" gorm:"type:text"`
	ResultMessage string       `json:"result_message" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ManualOpenLog) TableName() string { return "manual_open_logs" }

// Service drives gate release for settled tickets.
type Service interface {
	// NotifyPaid runs the bounded notification protocol for a paid
	// ticket. It never returns an error for an unacknowledged gate;
	// the result carries ManualOpenRequired instead.
	NotifyPaid(ctx context.Context, carNumber, recordID string) (NotifyResult, error)
	// OpenGate releases a channel directly and records the manual open.
	OpenGate(ctx context.Context, channelID, reason string) (ManualOpenLog, error)
	ListManualOpens(ctx context.Context, limit int) ([]ManualOpenLog, error)
}

// Repository persists manual open records.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *ManualOpenLog) error
	List(ctx context.Context, db *gorm.DB, limit int) ([]ManualOpenLog, error)
}

const (
	ReasonGrace          = "grace"
	ReasonUnacknowledged = "notify_unacknowledged"
	ReasonOperator       = "operator"
)

var ErrNotConfigured = errors.New("gate_not_configured")
