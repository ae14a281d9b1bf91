package repository

import (
	"context"
	"fmt"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	pkgkafka "github.com/obertruper/BOT-AI-V3-sub003/pkg/kafka"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

const defaultVerdictTopic = "botai.signals.verdicts"

// KafkaVerdictPublisher delivers verdicts to downstream consumers. Messages
// are keyed by exchange:symbol so one symbol's verdicts stay ordered within
// a partition.
type KafkaVerdictPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	log      *applogger.Logger
}

// VerdictPublisherOption configures the publisher.
type VerdictPublisherOption func(*KafkaVerdictPublisher)

// WithVerdictTopic overrides the output topic.
func WithVerdictTopic(topic string) VerdictPublisherOption {
	return func(p *KafkaVerdictPublisher) { p.topic = topic }
}

// NewVerdictPublisher wraps a Kafka producer.
func NewVerdictPublisher(producer *pkgkafka.Producer, log *applogger.Logger, opts ...VerdictPublisherOption) *KafkaVerdictPublisher {
	p := &KafkaVerdictPublisher{producer: producer, topic: defaultVerdictTopic, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one verdict. Serialization happens in the producer.
func (p *KafkaVerdictPublisher) Publish(ctx context.Context, v *models.Verdict) error {
	if v == nil {
		return fmt.Errorf("verdict publish: nil verdict")
	}
	key := []byte(v.Exchange + ":" + v.Symbol)
	if err := p.producer.Publish(ctx, p.topic, key, v); err != nil {
		return fmt.Errorf("verdict publish %s/%s: %w", v.Exchange, v.Symbol, err)
	}
	if p.log != nil {
		p.log.Debug("verdict published",
			applogger.String("symbol", v.Symbol),
			applogger.String("signal", string(v.SignalType)),
			applogger.String("topic", p.topic),
		)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaVerdictPublisher) Close() error {
	return p.producer.Close()
}
