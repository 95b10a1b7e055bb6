// Package kafka is the event bus adapter: an audited publisher and a
// consumer-group subscriber over segmentio/kafka-go. Delivery is
// at-least-once; consumers are responsible for idempotent handling.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/parametric-claims/internal/audit"
	"github.com/couchcryptid/parametric-claims/internal/config"
	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

// payloadSummaryLen bounds the payload excerpt stored on audit rows.
const payloadSummaryLen = 512

// messageWriter is the slice of kafkago.Writer the publisher needs; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher wraps domain events in envelopes, routes them to topics by event
// type, and audits every attempt. Publish never returns an error: failures
// are captured in the audit log and reported as false, so a publish failure
// cannot corrupt the calling stage's own state transition.
type Publisher struct {
	writer  messageWriter
	topics  map[string]string
	auditor *audit.Log
	metrics *observability.Metrics
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewPublisher creates the audited publisher. With the bus disabled (no
// brokers configured) events are audited as local_only and publishing
// reports success, which keeps single-process demo runs working.
func NewPublisher(cfg *config.Config, auditor *audit.Log, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	var writer messageWriter
	if cfg.BusEnabled {
		writer = &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
		}
	}
	return &Publisher{
		writer:  writer,
		topics:  topicRouting(cfg),
		auditor: auditor,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
	}
}

// topicRouting maps event types onto the configured topics.
func topicRouting(cfg *config.Config) map[string]string {
	return map[string]string{
		domain.EventOutageDetected:    cfg.KafkaOutageTopic,
		domain.EventThresholdExceeded: cfg.KafkaOutageTopic,
		domain.EventOutageResolved:    cfg.KafkaOutageTopic,
		domain.EventClaimApproved:     cfg.KafkaClaimTopic,
		domain.EventClaimDenied:       cfg.KafkaClaimTopic,
		domain.EventPayoutProcessed:   cfg.KafkaPayoutTopic,
	}
}

// Publish wraps payload in an envelope and writes it to the topic for
// eventType. The boolean is the only failure signal the caller gets.
func (p *Publisher) Publish(ctx context.Context, eventType, subject string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are our own structs; a marshal failure is a programming
		// error, but it still gets an audit row.
		p.record(ctx, domain.AuditRecord{
			EventID:   uuid.NewString(),
			EventType: eventType,
			Subject:   subject,
			EventTime: p.clock.Now().UTC(),
			Status:    domain.AuditFailed,
			Error:     err.Error(),
		})
		p.logger.Error("event payload marshal failed", "event_type", eventType, "subject", subject, "error", err)
		return false
	}

	env := domain.Envelope{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Subject:     subject,
		EventTime:   p.clock.Now().UTC(),
		DataVersion: domain.EnvelopeVersion,
		Data:        data,
	}

	rec := domain.AuditRecord{
		EventID:        env.ID,
		EventType:      eventType,
		Subject:        subject,
		EventTime:      env.EventTime,
		PayloadSummary: audit.Summarize(data, payloadSummaryLen),
	}

	if p.writer == nil {
		rec.Status = domain.AuditLocalOnly
		p.record(ctx, rec)
		p.logger.Debug("bus disabled, event audited locally", "event_type", eventType, "subject", subject)
		return true
	}

	msg, err := serializeEnvelope(env, p.topics[eventType])
	if err != nil {
		rec.Status = domain.AuditFailed
		rec.Error = err.Error()
		p.record(ctx, rec)
		p.logger.Error("event serialize failed", "event_type", eventType, "subject", subject, "error", err)
		return false
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		rec.Status = domain.AuditFailed
		rec.Error = err.Error()
		p.record(ctx, rec)
		p.logger.Error("event publish failed", "event_type", eventType, "subject", subject, "error", err)
		return false
	}

	rec.Status = domain.AuditPublished
	p.record(ctx, rec)
	return true
}

func (p *Publisher) record(ctx context.Context, rec domain.AuditRecord) {
	p.auditor.Record(ctx, rec)
	p.metrics.EventsPublished.WithLabelValues(rec.EventType, string(rec.Status)).Inc()
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// serializeEnvelope marshals an envelope into a Kafka message keyed by
// subject, so events about the same entity stay in partition order.
func serializeEnvelope(env domain.Envelope, topic string) (kafkago.Message, error) {
	value, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(env.Subject),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "data_version", Value: []byte(env.DataVersion)},
		},
	}, nil
}
