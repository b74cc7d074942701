package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/programador11r-tec/zkt-sub000/internal/observability/metrics"
	"github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	"github.com/programador11r-tec/zkt-sub000/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// codeAlphabet omits 0/O and 1/I to keep printed codes unambiguous.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
const codeLength = 8

const maxBatchSize = 500

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("voucher.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.IssueResponse, error) {
	if req.Count <= 0 || req.Count > maxBatchSize || req.Amount <= 0 {
		return domain.IssueResponse{}, domain.ErrInvalidIssue
	}

	batchID := s.genID.Generate()
	now := time.Now().UTC()

	vouchers := make([]*domain.Voucher, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code, err := generateCode()
		if err != nil {
			return domain.IssueResponse{}, err
		}
		vouchers = append(vouchers, &domain.Voucher{
			ID:          s.genID.Generate(),
			Code:        code,
			BatchID:     batchID,
			Amount:      req.Amount,
			Description: strings.TrimSpace(req.Description),
			Status:      domain.VoucherStatusNew,
			CreatedAt:   now,
		})
	}

	// Generated codes can collide with an existing batch; retry the
	// whole insert with fresh codes a few times before giving up.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.repo.Create(ctx, s.db, vouchers)
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.IssueResponse{}, err
		}
		for _, v := range vouchers {
			code, genErr := generateCode()
			if genErr != nil {
				return domain.IssueResponse{}, genErr
			}
			v.Code = code
		}
	}
	if err != nil {
		return domain.IssueResponse{}, err
	}

	s.log.Info("voucher batch issued",
		zap.String("batch_id", batchID.String()),
		zap.Int("count", req.Count),
		zap.Float64("amount", req.Amount),
	)

	out := domain.IssueResponse{BatchID: batchID}
	for _, v := range vouchers {
		out.Vouchers = append(out.Vouchers, *v)
	}
	return out, nil
}

func (s *Service) Lookup(ctx context.Context, code string) (*domain.Voucher, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ListBatch(ctx context.Context, batchID snowflake.ID) ([]domain.Voucher, error) {
	return s.repo.FindByBatch(ctx, s.db, batchID)
}

func (s *Service) Void(ctx context.Context, code string) error {
	code = normalizeCode(code)
	changed, err := s.repo.VoidIfNew(ctx, s.db, code)
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrVoucherUnavailable
	}
	return nil
}

func (s *Service) PrepareForRedemption(ctx context.Context, code string) (*domain.Voucher, error) {
	code = normalizeCode(code)
	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Status != domain.VoucherStatusNew {
		return nil, domain.ErrVoucherUnavailable
	}
	return item, nil
}

// Redeem must run on the settlement transaction: a failed settlement
// rolls the flip back, and a lost race aborts the settlement.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, code string, ticketNo string) error {
	code = normalizeCode(code)
	changed, err := s.repo.RedeemIfNew(ctx, tx, code, ticketNo, time.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		s.obsMetrics.RecordVoucherRedemption(ctx, "race_lost")
		return domain.ErrVoucherRaceLost
	}
	s.obsMetrics.RecordVoucherRedemption(ctx, "redeemed")
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCode() (string, error) {
	var sb strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate voucher code: %w", err)
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
