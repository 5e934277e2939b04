// Package events publishes notifications about recorded supply-chain steps.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const EventStepRecorded = "step.recorded"

// StepRecorded is emitted once a step has been confirmed on the ledger and
// persisted.
type StepRecorded struct {
	Type       string    `json:"type"`
	StepID     string    `json:"step_id"`
	ProductID  string    `json:"product_id"`
	BatchID    string    `json:"batch_id,omitempty"`
	Stage      string    `json:"stage"`
	StageLabel string    `json:"stage_label"`
	Location   string    `json:"location"`
	Sequence   uint64    `json:"sequence"`
	TxHash     string    `json:"tx_hash"`
	Digest     string    `json:"digest"`
	ActorID    string    `json:"actor_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (e StepRecorded) encode() ([]byte, error) {
	if e.Type == "" {
		e.Type = EventStepRecorded
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode step event: %w", err)
	}
	return payload, nil
}

type Publisher interface {
	PublishStepRecorded(ctx context.Context, event StepRecorded) error
}

type noopPublisher struct{}

// NewNoopPublisher returns a Publisher that drops every event.
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) PublishStepRecorded(context.Context, StepRecorded) error { return nil }
