package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	obscontext "github.com/programador11r-tec/zkt-sub000/internal/observability/context"
	"github.com/programador11r-tec/zkt-sub000/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Record appends one audit entry. A failed append is logged but never
// blocks the operation being audited.
func (s *Service) Record(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	actorType := "system"
	var actorID *string
	if operator := obscontext.OperatorFromContext(ctx); operator != "" {
		actorType = "operator"
		actorID = &operator
	}

	entry := auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		CorrelationID: correlation.ExtractCorrelationID(ctx),
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		TargetType:    targetType,
		TargetID:      normalizePointer(targetID),
		Metadata:      datatypes.JSONMap(payload),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Error("audit append failed",
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}
	return s.repo.Find(ctx, s.db, req)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
