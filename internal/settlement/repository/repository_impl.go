package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Invoice, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := db.WithContext(ctx).Model(&domain.Invoice{})
	if req.TicketNo != "" {
		query = query.Where("ticket_no = ?", req.TicketNo)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var invoices []domain.Invoice
	err := query.Order("created_at DESC").Limit(limit).Find(&invoices).Error
	return invoices, err
}
