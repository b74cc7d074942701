package repository

import (
	"context"
	"strings"

	"github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})

	if action := strings.TrimSpace(req.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if targetType := strings.TrimSpace(req.TargetType); targetType != "" {
		stmt = stmt.Where("target_type = ?", targetType)
	}
	if targetID := strings.TrimSpace(req.TargetID); targetID != "" {
		stmt = stmt.Where("target_id = ?", targetID)
	}
	if correlationID := strings.TrimSpace(req.CorrelationID); correlationID != "" {
		stmt = stmt.Where("correlation_id = ?", correlationID)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", req.StartAt)
	}
	if req.EndAt != nil {
		stmt = stmt.Where("created_at < ?", req.EndAt)
	}

	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []domain.AuditLog
	err := stmt.Order("created_at DESC").Limit(limit).Find(&items).Error
	return items, err
}
