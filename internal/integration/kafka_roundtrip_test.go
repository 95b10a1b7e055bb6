//go:build integration

// Round-trip test for the event bus adapter against a real Kafka broker.
// Run with: go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/parametric-claims/internal/adapter/kafka"
	"github.com/couchcryptid/parametric-claims/internal/audit"
	"github.com/couchcryptid/parametric-claims/internal/config"
	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

type memRecorder struct {
	records []domain.AuditRecord
}

func (m *memRecorder) AppendAudit(_ context.Context, rec domain.AuditRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker in a container and returns its
// advertised addresses.
func startKafka(t *testing.T, ctx context.Context) []string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("claims-test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := startKafka(t, ctx)
	createTopic(t, brokers[0], "outage-events")

	cfg := &config.Config{
		KafkaBrokers:     brokers,
		KafkaOutageTopic: "outage-events",
		KafkaClaimTopic:  "claim-decisions",
		KafkaPayoutTopic: "payout-events",
		KafkaGroupID:     "claims-it",
		BusEnabled:       true,
	}

	recorder := &memRecorder{}
	auditor := audit.NewLog(recorder, discardLogger())
	pub := kafkaadapter.NewPublisher(cfg, auditor, observability.NewMetricsForTesting(), clockwork.NewRealClock(), discardLogger())
	defer pub.Close()

	payload := domain.OutageDetectedPayload{
		EventID:          "OUT-AUSTINENER-20260312143000",
		UtilityName:      "Austin Energy",
		Location:         domain.Location{Latitude: 30.2672, Longitude: -97.7431, ZipCode: "78701"},
		AffectedPolicies: []string{"POL-0001"},
		PolicyCount:      1,
	}
	require.True(t, pub.Publish(ctx, domain.EventOutageDetected, domain.OutageSubject(payload.EventID), payload))

	require.Len(t, recorder.records, 1)
	assert.Equal(t, domain.AuditPublished, recorder.records[0].Status)

	sub := kafkaadapter.NewSubscriber(cfg, cfg.KafkaOutageTopic, "it", discardLogger())
	defer sub.Close()

	msg, err := sub.Fetch(ctx)
	require.NoError(t, err)

	assert.Equal(t, "outage-events", msg.Topic)
	assert.Equal(t, domain.OutageSubject(payload.EventID), string(msg.Key))

	env, err := domain.ParseEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutageDetected, env.EventType)
	assert.Equal(t, domain.EnvelopeVersion, env.DataVersion)

	var got domain.OutageDetectedPayload
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, payload.EventID, got.EventID)
	assert.Equal(t, []string{"POL-0001"}, got.AffectedPolicies)

	require.NoError(t, msg.Commit(ctx))
}
