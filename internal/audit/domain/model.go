package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is one entry of the append-only audit trail.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Actions written by the provenance pipeline.
const (
	ActionAuthorizationDenied    = "authorization.denied"
	ActionLedgerSubmissionFailed = "ledger.submission_failed"
	ActionStepPersistFailed      = "step.persist_failed"
	ActionBatchStepRecorded      = "batch.step_recorded"
	ActionProductDeleted         = "product.deleted"
)

// Target types.
const (
	TargetProduct = "product"
	TargetBatch   = "batch"
	TargetStage   = "stage"
)
