package events

import (
	"context"

	"github.com/smallbiznis/tracechain/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not configured, step events disabled")
		return NewNoopPublisher()
	}
	pub := NewKafkaPublisher(NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.StepTopic), cfg.Kafka.StepTopic, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub
}
