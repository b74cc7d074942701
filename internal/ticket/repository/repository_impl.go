package repository

import (
	"context"
	"errors"
	"time"

	"github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	pkgdb "github.com/programador11r-tec/zkt-sub000/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByNo(ctx context.Context, db *gorm.DB, ticketNo string) (*domain.Ticket, error) {
	var item domain.Ticket
	err := db.WithContext(ctx).Where("ticket_no = ?", ticketNo).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	if err := db.WithContext(ctx).Create(ticket).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ErrTicketExists
		}
		return err
	}
	return nil
}

// Close is guarded on status so a concurrent settlement of the same
// ticket observes zero rows changed and aborts.
func (r *repo) Close(ctx context.Context, db *gorm.DB, ticketNo string, exitAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tickets
		 SET status = ?, exit_at = COALESCE(exit_at, ?), updated_at = ?
		 WHERE ticket_no = ? AND status = ?`,
		domain.TicketStatusClosed,
		exitAt,
		time.Now().UTC(),
		ticketNo,
		domain.TicketStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type paymentRepo struct{}

func ProvidePayments() domain.PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) FindByTicket(ctx context.Context, db *gorm.DB, ticketNo string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Where("ticket_no = ?", ticketNo).Order("created_at DESC").First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *paymentRepo) Create(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}
