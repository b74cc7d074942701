// Package domain defines the mutable rate configuration contract.
package domain

import (
	"context"
	"errors"
	"time"
)

// Setting is one app-wide configuration row.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;type:text"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Setting) TableName() string { return "settings" }

const (
	KeyHourlyRate  = "billing.hourly_rate"
	KeyMonthlyRate = "billing.monthly_rate"
)

// Provider exposes the current rates. Implementations must read fresh
// state on every call; rates are never cached across settlements.
type Provider interface {
	HourlyRate(ctx context.Context) (*float64, error)
	MonthlyRate(ctx context.Context) (*float64, error)
	SetHourlyRate(ctx context.Context, rate float64) error
	SetMonthlyRate(ctx context.Context, rate float64) error
}

var ErrInvalidRate = errors.New("invalid_rate")
