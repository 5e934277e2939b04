package domain

import (
	"context"
	"errors"
)

type ListAuditLogRequest struct {
	TargetType string
	TargetID   string
	Action     string
	Limit      int
}

type Service interface {
	AuditLog(ctx context.Context, actorID string, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidTargetType = errors.New("invalid_target_type")
)
