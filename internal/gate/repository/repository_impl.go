package repository

import (
	"context"

	"github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.ManualOpenLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]domain.ManualOpenLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []domain.ManualOpenLog
	err := db.WithContext(ctx).Order("opened_at DESC").Limit(limit).Find(&items).Error
	return items, err
}
