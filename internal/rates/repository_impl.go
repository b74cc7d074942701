package rates

import (
	"context"
	"strconv"
	"time"

	"github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) domain.Provider {
	return &provider{db: db}
}

func (p *provider) HourlyRate(ctx context.Context) (*float64, error) {
	return p.rate(ctx, domain.KeyHourlyRate)
}

func (p *provider) MonthlyRate(ctx context.Context) (*float64, error) {
	return p.rate(ctx, domain.KeyMonthlyRate)
}

func (p *provider) SetHourlyRate(ctx context.Context, rate float64) error {
	return p.set(ctx, domain.KeyHourlyRate, rate)
}

func (p *provider) SetMonthlyRate(ctx context.Context, rate float64) error {
	return p.set(ctx, domain.KeyMonthlyRate, rate)
}

func (p *provider) rate(ctx context.Context, key string) (*float64, error) {
	var rows []domain.Setting
	err := p.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(rows[0].Value, 64)
	if err != nil || parsed <= 0 {
		return nil, nil
	}
	return &parsed, nil
}

func (p *provider) set(ctx context.Context, key string, rate float64) error {
	if rate <= 0 {
		return domain.ErrInvalidRate
	}
	setting := domain.Setting{
		Key:       key,
		Value:     strconv.FormatFloat(rate, 'f', 2, 64),
		UpdatedAt: time.Now().UTC(),
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}
