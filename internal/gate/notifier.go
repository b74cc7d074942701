package gate

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	obsmetrics "github.com/programador11r-tec/zkt-sub000/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxNotifyAttempts bounds the escalation chain.
const maxNotifyAttempts = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Parking    *config.ParkingConfigHolder
	Controller domain.Controller
	Repo       domain.Repository
	Audit      auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	parking    *config.ParkingConfigHolder
	controller domain.Controller
	repo       domain.Repository
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("gate.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		parking:    p.Parking,
		controller: p.Controller,
		repo:       p.Repo,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

// NotifyPaid runs up to three notification attempts against the gate
// controller. The outcome returned to the caller is always the first
// attempt's. Later attempts are reinforcement pings for controller
// firmwares that drop an ack after accepting the payment: attempt 2
// runs only when attempt 1 was sent and acknowledged, and attempt 3
// only when attempt 2 was too. Their outcomes are logged, nothing more.
//
// When attempt 1 is not sent or not acknowledged the chain stops and
// the result flags ManualOpenRequired for the operator.
func (s *Service) NotifyPaid(ctx context.Context, carNumber, recordID string) (domain.NotifyResult, error) {
	result := domain.NotifyResult{}

	for number := 1; number <= maxNotifyAttempts; number++ {
		attempt, raw := s.attemptNotify(ctx, number, carNumber, recordID)
		result.Attempts = append(result.Attempts, attempt)
		s.recordAttempt(ctx, recordID, attempt)

		if number == 1 {
			result.Sent = attempt.Sent
			result.Acknowledged = attempt.Acknowledged
			result.HTTPStatus = attempt.HTTPStatus
			result.Error = attempt.Error
			result.RawResponse = raw
		}

		if !attempt.Sent || !attempt.Acknowledged {
			break
		}
	}

	if !result.Sent || !result.Acknowledged {
		result.ManualOpenRequired = true
		s.log.Warn("gate notify unacknowledged, manual open required",
			zap.String("record_id", recordID),
			zap.String("car_number", carNumber),
			zap.Int("http_status", result.HTTPStatus),
			zap.Int("attempts", len(result.Attempts)),
		)
	}
	return result, nil
}

// attemptNotify performs one exchange and classifies it.
func (s *Service) attemptNotify(ctx context.Context, number int, carNumber, recordID string) (domain.Attempt, []byte) {
	outcome, err := s.controller.PayNotify(ctx, carNumber, recordID, s.cfg.Gate.PaymentType)

	attempt := domain.Attempt{
		Number:     number,
		Endpoint:   outcome.Endpoint,
		Payload:    outcome.Payload,
		HTTPStatus: outcome.HTTPStatus,
	}
	if err != nil {
		attempt.Error = err.Error()
	} else {
		attempt.Sent = outcome.HTTPStatus >= 200 && outcome.HTTPStatus < 300
		attempt.Acknowledged = attempt.Sent && s.parking.IsAckCode(outcome.AckCode)
	}

	s.obsMetrics.RecordGateNotifyAttempt(ctx, number, attempt.Acknowledged)
	return attempt, outcome.Raw
}

func (s *Service) recordAttempt(ctx context.Context, recordID string, attempt domain.Attempt) {
	_ = s.audit.Record(ctx, "gate.notify_attempt", "ticket", &recordID, map[string]any{
		"attempt_number": attempt.Number,
		"endpoint":       attempt.Endpoint,
		"payload":        attempt.Payload,
		"http_status":    attempt.HTTPStatus,
		"sent":           attempt.Sent,
		"acknowledged":   attempt.Acknowledged,
		"error":          attempt.Error,
	})
}

// OpenGate releases a channel directly and records the manual open.
// The controller call and the record insert both run even when the
// other fails; an unrecorded open is worse than a noisy log.
func (s *Service) OpenGate(ctx context.Context, channelID, reason string) (domain.ManualOpenLog, error) {
	if channelID == "" {
		channelID = s.exitChannelID()
	}
	switch reason {
	case domain.ReasonGrace, domain.ReasonUnacknowledged, domain.ReasonOperator:
	default:
		reason = domain.ReasonOperator
	}

	open, err := s.controller.OpenChannel(ctx, channelID)

	entry := domain.ManualOpenLog{
		ID:            s.genID.Generate(),
		ChannelID:     channelID,
		OpenedAt:      time.Now().UTC(),
		Reason:        reason,
		HTTPStatus:    open.HTTPStatus,
		ResultCode:    open.Code,
		ResultMessage: open.Message,
		CreatedAt:     time.Now().UTC(),
	}
	if err != nil {
		entry.ResultMessage = err.Error()
	}

	if insertErr := s.repo.Insert(ctx, s.db, &entry); insertErr != nil {
		s.log.Error("manual open record failed",
			zap.String("channel_id", channelID),
			zap.Error(insertErr),
		)
		if err == nil {
			err = insertErr
		}
	}

	s.obsMetrics.RecordManualOpen(ctx, reason)
	_ = s.audit.Record(ctx, "gate.manual_open", "gate_channel", &channelID, map[string]any{
		"reason":      reason,
		"http_status": open.HTTPStatus,
		"result_code": open.Code,
		"ok":          open.OK,
	})

	if err != nil {
		return entry, err
	}
	if !open.OK {
		s.log.Warn("gate open rejected by controller",
			zap.String("channel_id", channelID),
			zap.Int("http_status", open.HTTPStatus),
			zap.String("code", open.Code),
		)
	}
	return entry, nil
}

func (s *Service) ListManualOpens(ctx context.Context, limit int) ([]domain.ManualOpenLog, error) {
	return s.repo.List(ctx, s.db, limit)
}

func (s *Service) exitChannelID() string {
	if s.cfg.Gate.ExitChannelID != "" {
		return s.cfg.Gate.ExitChannelID
	}
	return s.parking.ExitChannel().ID
}
