package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tracechain/internal/config"
)

const keyStepWriteActor = "steps:write:actor:%s"

// StepWriteLimiter throttles step submissions per actor. Every step costs a
// ledger transaction, so one actor cannot drain the signing account.
type StepWriteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewStepWriteLimiter returns nil when Redis or the limit is not configured.
func NewStepWriteLimiter(cfg config.Config, client *redis.Client) *StepWriteLimiter {
	if client == nil || cfg.RateLimit.StepWriteRate <= 0 || cfg.RateLimit.StepWriteBurst <= 0 {
		return nil
	}
	return &StepWriteLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.StepWriteRate,
		burst:  cfg.RateLimit.StepWriteBurst,
	}
}

func (l *StepWriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowActor takes one token from the actor's bucket.
func (l *StepWriteLimiter) AllowActor(ctx context.Context, actorID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, stepWriteKey(actorID), l.rate, l.burst)
}

func stepWriteKey(actorID string) string {
	return fmt.Sprintf(keyStepWriteActor, strings.ToLower(strings.TrimSpace(actorID)))
}
