package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, vouchers []*domain.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(vouchers).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Voucher, error) {
	var item domain.Voucher
	err := db.WithContext(ctx).Where("code = ?", code).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]domain.Voucher, error) {
	var items []domain.Voucher
	err := db.WithContext(ctx).Where("batch_id = ?", batchID).Order("code").Find(&items).Error
	return items, err
}

// RedeemIfNew closes the race window with a guarded update instead of
// read-then-write: only a row still NEW at update time is flipped.
func (r *repo) RedeemIfNew(ctx context.Context, db *gorm.DB, code string, ticketNo string, redeemedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE discount_vouchers
		 SET status = ?, redeemed_ticket = ?, redeemed_at = ?
		 WHERE code = ? AND status = ?`,
		domain.VoucherStatusRedeemed,
		ticketNo,
		redeemedAt,
		code,
		domain.VoucherStatusNew,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) VoidIfNew(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE discount_vouchers
		 SET status = ?
		 WHERE code = ? AND status = ?`,
		domain.VoucherStatusVoid,
		code,
		domain.VoucherStatusNew,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
