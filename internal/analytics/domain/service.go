package domain

import (
	"context"

	"github.com/smallbiznis/tracechain/internal/stage"
)

// NoStage is reported as the slowest stage when no dwell time was observed.
const NoStage stage.Code = "none"

type StageCount struct {
	Stage stage.Code `json:"stage"`
	Label string     `json:"label"`
	Count int64      `json:"count"`
}

// StageDwell is the average time products spent at a stage before their next
// recorded step.
type StageDwell struct {
	Stage        stage.Code `json:"stage"`
	Label        string     `json:"label"`
	AverageDays  float64    `json:"average_days"`
	Observations int        `json:"observations"`
}

type Summary struct {
	StageCounts       []StageCount `json:"stage_counts"`
	Dwell             []StageDwell `json:"dwell"`
	TotalProducts     int64        `json:"total_products"`
	TotalUpdates      int64        `json:"total_updates"`
	SlowestStage      stage.Code   `json:"slowest_stage"`
	SlowestStageLabel string       `json:"slowest_stage_label"`
	SlowestStageDays  float64      `json:"slowest_stage_days"`
}

type Service interface {
	StageActivityCounts(ctx context.Context) ([]StageCount, error)
	AverageDwellTimePerStage(ctx context.Context) ([]StageDwell, error)
	SlowestStage(ctx context.Context) (stage.Code, float64, error)
	Summary(ctx context.Context) (*Summary, error)
}
