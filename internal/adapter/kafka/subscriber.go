package kafka

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/parametric-claims/internal/config"
	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// Subscriber consumes one topic within a consumer group. Offsets are
// committed explicitly through InboundEvent.Commit, after the handler has
// finished with the message.
type Subscriber struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewSubscriber creates a consumer-group reader for topic. Each worker gets
// its own group suffix so the evaluator and the payout processor track
// independent offsets.
func NewSubscriber(cfg *config.Config, topic, groupSuffix string, logger *slog.Logger) *Subscriber {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   topic,
		GroupID: cfg.KafkaGroupID + "-" + groupSuffix,
	})
	return &Subscriber{reader: reader, logger: logger}
}

// Fetch blocks until a message is available or the context is cancelled.
func (s *Subscriber) Fetch(ctx context.Context) (domain.InboundEvent, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return domain.InboundEvent{}, err
	}
	raw := mapMessage(msg)
	raw.Commit = func(ctx context.Context) error {
		return s.reader.CommitMessages(ctx, msg)
	}
	return raw, nil
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}

// mapMessage converts a Kafka message into the domain's inbound shape.
func mapMessage(msg kafkago.Message) domain.InboundEvent {
	return domain.InboundEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
