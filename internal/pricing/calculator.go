// Package pricing computes parking charges. It is pure: no I/O, no
// clock reads beyond the caller-supplied timestamps.
package pricing

import (
	"errors"
	"math"
	"time"
)

// Mode selects how a ticket is charged.
type Mode string

const (
	ModeHourly  Mode = "hourly"
	ModeCustom  Mode = "custom"
	ModeGrace   Mode = "grace"
	ModeMonthly Mode = "monthly"
)

// Source records which side produced the charged figure.
type Source string

const (
	SourceBackend     Source = "backend"
	SourceClient      Source = "client"
	SourceClientTotal Source = "client_total"
)

// Input is everything a quote depends on.
type Input struct {
	EntryAt time.Time
	ExitAt  time.Time
	Mode    Mode

	HourlyRate  *float64
	MonthlyRate *float64

	// CustomAmount applies only to ModeCustom.
	CustomAmount float64
}

// Quote is a computed charge before discounts.
type Quote struct {
	Total          float64
	DurationMin    int
	HoursBilled    int
	Mode           Mode
	HourlyRateUsed float64
	Source         Source
}

var (
	ErrInvalidMode         = errors.New("invalid_billing_mode")
	ErrHourlyRateNotSet    = errors.New("hourly_rate_not_configured")
	ErrMonthlyRateNotSet   = errors.New("monthly_rate_not_configured")
	ErrInvalidCustomAmount = errors.New("invalid_custom_amount")
	ErrExitBeforeEntry     = errors.New("exit_before_entry")
)

// Calculate returns the charge for a ticket under the requested mode.
// Hours are billed on a ceiling with a one hour minimum whenever any
// time elapsed; zero elapsed time yields zero duration and no hourly
// charge. An exit before entry is a data error, not a free ticket.
func Calculate(in Input) (Quote, error) {
	elapsed := in.ExitAt.Sub(in.EntryAt)
	if elapsed < 0 {
		return Quote{}, ErrExitBeforeEntry
	}

	quote := Quote{Mode: in.Mode, Source: SourceBackend}
	if secs := elapsed.Seconds(); secs > 0 {
		hours := int(math.Ceil(secs / 3600))
		if hours < 1 {
			hours = 1
		}
		quote.HoursBilled = hours
		quote.DurationMin = hours * 60
	}

	switch in.Mode {
	case ModeHourly:
		if in.HourlyRate == nil || *in.HourlyRate <= 0 {
			return Quote{}, ErrHourlyRateNotSet
		}
		quote.HourlyRateUsed = *in.HourlyRate
		quote.Total = Round2(float64(quote.HoursBilled) * *in.HourlyRate)
	case ModeCustom:
		if in.CustomAmount <= 0 {
			return Quote{}, ErrInvalidCustomAmount
		}
		quote.Total = Round2(in.CustomAmount)
	case ModeMonthly:
		if in.MonthlyRate == nil || *in.MonthlyRate <= 0 {
			return Quote{}, ErrMonthlyRateNotSet
		}
		quote.Total = Round2(*in.MonthlyRate)
	case ModeGrace:
		quote.Total = 0
	default:
		return Quote{}, ErrInvalidMode
	}

	return quote, nil
}

// Round2 rounds a GTQ amount to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParseMode normalizes a requested mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeHourly, ModeCustom, ModeGrace, ModeMonthly:
		return Mode(raw), nil
	default:
		return "", ErrInvalidMode
	}
}
