package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	obscontext "github.com/smallbiznis/tracechain/internal/observability/context"
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

// AuditLog appends an entry. An empty actorID falls back to the actor on ctx.
func (s *Service) AuditLog(ctx context.Context, actorID string, action, targetType, targetID string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	if strings.TrimSpace(actorID) == "" {
		actorID, _ = obscontext.ActorFromContext(ctx)
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

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  time.Now().UTC(),
	}
	ipAddress, userAgent := obscontext.ClientFromContext(ctx)
	entry.IPAddress = optional(ipAddress)
	entry.UserAgent = optional(userAgent)

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	targetType := strings.TrimSpace(req.TargetType)
	if targetType == "" {
		return nil, auditdomain.ErrInvalidTargetType
	}
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TargetType: targetType,
		TargetID:   strings.TrimSpace(req.TargetID),
		Action:     strings.TrimSpace(req.Action),
		Limit:      limit,
	})
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
