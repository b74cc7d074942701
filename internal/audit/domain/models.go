// Package domain contains the append-only audit contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is one append-only record of a settlement or gate event.
// Rows are written, never updated.
type AuditLog struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	CorrelationID string            `json:"correlation_id" gorm:"type:text;not null;index"`
	ActorType     string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID       *string           `json:"actor_id" gorm:"type:text"`
	Action        string            `json:"action" gorm:"type:text;not null;index"`
	TargetType    string            `json:"target_type" gorm:"type:text;not null"`
	TargetID      *string           `json:"target_id" gorm:"type:text;index"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"not null;default:'{}'"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// ListRequest filters audit log reads.
type ListRequest struct {
	Action        string
	TargetType    string
	TargetID      string
	CorrelationID string
	StartAt       *time.Time
	EndAt         *time.Time
	Limit         int
}

// Service records and reads audit entries.
type Service interface {
	Record(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

// Repository persists audit entries.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	Find(ctx context.Context, db *gorm.DB, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
