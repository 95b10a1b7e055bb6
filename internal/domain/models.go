package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutageStatus is the lifecycle state of an outage event as reported by the feed.
type OutageStatus string

const (
	OutageActive        OutageStatus = "active"
	OutageResolved      OutageStatus = "resolved"
	OutageInvestigating OutageStatus = "investigating"
)

// ClaimStatus is the lifecycle state of a claim. Transitions are monotonic.
type ClaimStatus string

const (
	ClaimFiled      ClaimStatus = "filed"
	ClaimValidating ClaimStatus = "validating"
	ClaimApproved   ClaimStatus = "approved"
	ClaimDenied     ClaimStatus = "denied"
	ClaimPaid       ClaimStatus = "paid"
)

// claimRank orders claim statuses for monotonicity checks. Approved and
// denied share a rank: they are alternative outcomes of validation.
var claimRank = map[ClaimStatus]int{
	ClaimFiled:      0,
	ClaimValidating: 1,
	ClaimApproved:   2,
	ClaimDenied:     2,
	ClaimPaid:       3,
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Denied claims are terminal; only approved claims can be paid.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	from, ok := claimRank[s]
	to, ok2 := claimRank[next]
	if !ok || !ok2 || to <= from {
		return false
	}
	if next == ClaimPaid && s != ClaimApproved {
		return false
	}
	return true
}

// PayoutStatus is the lifecycle state of a payout. Transitions are monotonic.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

var payoutRank = map[PayoutStatus]int{
	PayoutPending:    0,
	PayoutProcessing: 1,
	PayoutCompleted:  2,
	PayoutFailed:     2,
}

// CanTransition reports whether moving from s to next is a legal forward transition.
func (s PayoutStatus) CanTransition(next PayoutStatus) bool {
	from, ok := payoutRank[s]
	to, ok2 := payoutRank[next]
	return ok && ok2 && to > from
}

// Decision is a validation verdict from the claims decision engine.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Location is a geographic point with its postal area. Immutable once
// attached to an event.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ZipCode   string  `json:"zip_code"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
}

// OutageEvent is a power outage reported by the upstream feed. The feed owns
// the event_id; the pipeline only ever updates status and duration as
// resolution information arrives.
type OutageEvent struct {
	EventID           string       `json:"event_id"`
	UtilityName       string       `json:"utility_name"`
	Location          Location     `json:"location"`
	AffectedCustomers int          `json:"affected_customers"`
	OutageStart       time.Time    `json:"outage_start"`
	OutageEnd         *time.Time   `json:"outage_end,omitempty"`
	DurationMinutes   *int         `json:"duration_minutes,omitempty"`
	Status            OutageStatus `json:"status"`
	ReportedCause     string       `json:"reported_cause,omitempty"`
	DataSource        string       `json:"data_source,omitempty"`
	LastUpdated       *time.Time   `json:"last_updated,omitempty"`
}

// EffectiveDuration returns the outage duration in minutes, estimating from
// the start time when the feed has not reported a duration yet.
func (o OutageEvent) EffectiveDuration(now time.Time) int {
	if o.DurationMinutes != nil {
		return *o.DurationMinutes
	}
	if o.OutageStart.IsZero() || now.Before(o.OutageStart) {
		return 0
	}
	return int(now.Sub(o.OutageStart) / time.Minute)
}

// WeatherObservation is a write-once weather record for a location, looked up
// by recency relative to an outage.
type WeatherObservation struct {
	Location           Location  `json:"location"`
	ObservedAt         time.Time `json:"observed_at"`
	TemperatureF       float64   `json:"temperature_f"`
	WindSpeedMPH       float64   `json:"wind_speed_mph"`
	WindGustMPH        float64   `json:"wind_gust_mph"`
	Conditions         string    `json:"conditions,omitempty"`
	SevereWeatherAlert bool      `json:"severe_weather_alert"`
	AlertType          string    `json:"alert_type,omitempty"`
}

// PeakWind returns the stronger of sustained wind and gust, the value the
// severity multiplier is evaluated against.
func (w WeatherObservation) PeakWind() float64 {
	if w.WindGustMPH > w.WindSpeedMPH {
		return w.WindGustMPH
	}
	return w.WindSpeedMPH
}

// Policy is read-mostly reference data describing one insured business.
type Policy struct {
	PolicyID         string          `json:"policy_id"`
	BusinessName     string          `json:"business_name"`
	Location         Location        `json:"location"`
	ThresholdMinutes int             `json:"threshold_minutes"`
	HourlyRate       decimal.Decimal `json:"hourly_rate"`
	MaxPayout        decimal.Decimal `json:"max_payout"`
	Status           string          `json:"status"`
	EffectiveDate    *time.Time      `json:"effective_date,omitempty"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty"`
	ContactEmail     string          `json:"contact_email,omitempty"`
}

// IsActive reports whether the policy is in force at the given instant.
func (p Policy) IsActive(now time.Time) bool {
	if p.Status != "active" {
		return false
	}
	if p.EffectiveDate != nil && now.Before(*p.EffectiveDate) {
		return false
	}
	if p.ExpirationDate != nil && now.After(*p.ExpirationDate) {
		return false
	}
	return true
}

// Claim records one validation outcome for a (policy, outage) pair. The
// claim_id is deterministic, so at most one claim can exist per pair.
type Claim struct {
	ClaimID            string          `json:"claim_id"`
	PolicyID           string          `json:"policy_id"`
	OutageEventID      string          `json:"outage_event_id"`
	Status             ClaimStatus     `json:"status"`
	FiledAt            time.Time       `json:"filed_at"`
	ValidatedAt        *time.Time      `json:"validated_at,omitempty"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	DeniedAt           *time.Time      `json:"denied_at,omitempty"`
	DenialReason       string          `json:"denial_reason,omitempty"`
	PayoutAmount       decimal.Decimal `json:"payout_amount"`
	AIConfidenceScore  float64         `json:"ai_confidence_score"`
	AIReasoning        string          `json:"ai_reasoning,omitempty"`
	FraudFlags         []string        `json:"fraud_flags,omitempty"`
	WeatherFactor      float64         `json:"weather_factor"`
	SeverityAssessment string          `json:"severity_assessment,omitempty"`
}

// Payout records one settlement attempt for an approved claim. Amount always
// equals the claim's payout_amount; it is never recomputed here.
type Payout struct {
	PayoutID      string          `json:"payout_id"`
	ClaimID       string          `json:"claim_id"`
	PolicyID      string          `json:"policy_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PayoutStatus    `json:"status"`
	InitiatedAt   time.Time       `json:"initiated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaymentMethod string          `json:"payment_method"`
}

// Evidence is one supporting fact attached to a validation result.
type Evidence struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ValidationResult is the transient verdict produced by the decision engine.
// It is copied onto the Claim record, never persisted on its own.
type ValidationResult struct {
	Decision           Decision        `json:"decision"`
	ConfidenceScore    float64         `json:"confidence_score"`
	PayoutAmount       decimal.Decimal `json:"payout_amount"`
	Reasoning          string          `json:"reasoning"`
	Evidence           []Evidence      `json:"evidence"`
	FraudSignals       []string        `json:"fraud_signals"`
	SeverityAssessment string          `json:"severity_assessment"`
	WeatherFactor      float64         `json:"weather_factor"`
}

// AuditStatus is the outcome of one event publish attempt.
type AuditStatus string

const (
	AuditPublished AuditStatus = "published"
	AuditFailed    AuditStatus = "failed"
	AuditLocalOnly AuditStatus = "local_only"
)

// AuditRecord is one append-only row per publish attempt, successful or not.
// Sequence is assigned by the ledger store on insert.
type AuditRecord struct {
	Sequence       int64       `json:"sequence,omitempty"`
	EventID        string      `json:"event_id"`
	EventType      string      `json:"event_type"`
	Subject        string      `json:"subject"`
	EventTime      time.Time   `json:"event_time"`
	PayloadSummary string      `json:"payload_summary,omitempty"`
	Status         AuditStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
}

// OutagePatch enumerates the mutable fields of an outage event. Nil fields
// are left untouched by the store.
type OutagePatch struct {
	Status          *OutageStatus
	OutageEnd       *time.Time
	DurationMinutes *int
	LastUpdated     *time.Time
}

// ClaimPatch enumerates the mutable fields of a claim.
type ClaimPatch struct {
	Status *ClaimStatus
}

// PayoutPatch enumerates the mutable fields of a payout.
type PayoutPatch struct {
	Status        *PayoutStatus
	CompletedAt   *time.Time
	TransactionID *string
}
