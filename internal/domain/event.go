package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published by the pipeline.
const (
	EventOutageDetected    = "outage.detected"
	EventThresholdExceeded = "outage.threshold.exceeded"
	EventOutageResolved    = "outage.resolved"
	EventClaimApproved     = "claim.approved"
	EventClaimDenied       = "claim.denied"
	EventPayoutProcessed   = "payout.processed"
)

// EnvelopeVersion is the payload schema version carried on every event.
const EnvelopeVersion = "1.0"

// Envelope wraps every published event with routing and audit metadata.
type Envelope struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Subject     string          `json:"subject"`
	EventTime   time.Time       `json:"event_time"`
	DataVersion string          `json:"data_version"`
	Data        json.RawMessage `json:"data"`
}

// Subject path builders. Subjects identify the entity an event is about.

func OutageSubject(eventID string) string { return fmt.Sprintf("outage/%s", eventID) }
func PolicySubject(policyID string) string { return fmt.Sprintf("policy/%s", policyID) }
func ClaimSubject(claimID string) string   { return fmt.Sprintf("claim/%s", claimID) }
func PayoutSubject(payoutID string) string { return fmt.Sprintf("payout/%s", payoutID) }

// OutageDetectedPayload announces an active outage that affects at least one
// policy. Duration is a snapshot; consumers re-read the outage for fresh
// state before acting on it.
type OutageDetectedPayload struct {
	EventID           string   `json:"event_id"`
	UtilityName       string   `json:"utility_name"`
	Location          Location `json:"location"`
	AffectedCustomers int      `json:"affected_customers"`
	OutageStart       string   `json:"outage_start"`
	DurationMinutes   int      `json:"duration_minutes"`
	Status            string   `json:"status"`
	ReportedCause     string   `json:"reported_cause,omitempty"`
	AffectedPolicies  []string `json:"affected_policies"`
	PolicyCount       int      `json:"policy_count"`
}

// ThresholdExceededPayload records that one policy's trigger fired for an outage.
type ThresholdExceededPayload struct {
	PolicyID             string   `json:"policy_id"`
	EventID              string   `json:"event_id"`
	DurationMinutes      int      `json:"duration_minutes"`
	ThresholdMinutes     int      `json:"threshold_minutes"`
	MinutesOverThreshold int      `json:"minutes_over_threshold"`
	Location             Location `json:"location"`
	UtilityName          string   `json:"utility_name"`
	AffectedCustomers    int      `json:"affected_customers"`
}

// ClaimDecisionPayload carries a claim verdict. Published as claim.approved
// or claim.denied depending on Status.
type ClaimDecisionPayload struct {
	ClaimID            string          `json:"claim_id"`
	PolicyID           string          `json:"policy_id"`
	OutageEventID      string          `json:"outage_event_id"`
	Status             string          `json:"status"`
	PayoutAmount       decimal.Decimal `json:"payout_amount"`
	AIConfidenceScore  float64         `json:"ai_confidence_score"`
	AIReasoning        string          `json:"ai_reasoning,omitempty"`
	FraudFlags         []string        `json:"fraud_flags,omitempty"`
	SeverityAssessment string          `json:"severity_assessment"`
	WeatherFactor      float64         `json:"weather_factor"`
}

// OutageResolvedPayload announces that an outage reached its end state.
type OutageResolvedPayload struct {
	EventID         string   `json:"event_id"`
	UtilityName     string   `json:"utility_name"`
	Location        Location `json:"location"`
	OutageStart     string   `json:"outage_start"`
	OutageEnd       string   `json:"outage_end"`
	DurationMinutes int      `json:"duration_minutes"`
}

// PayoutProcessedPayload confirms a completed settlement.
type PayoutProcessedPayload struct {
	PayoutID      string          `json:"payout_id"`
	ClaimID       string          `json:"claim_id"`
	PolicyID      string          `json:"policy_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	InitiatedAt   string          `json:"initiated_at"`
	CompletedAt   string          `json:"completed_at"`
}

// InboundEvent is an unprocessed message from a bus subscription. Commit
// acknowledges the message; handlers that skip a message still commit so it
// is not redelivered.
type InboundEvent struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseEnvelope deserializes an inbound message into an event envelope.
func ParseEnvelope(raw InboundEvent) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse event envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("event envelope missing event_type")
	}
	return env, nil
}
