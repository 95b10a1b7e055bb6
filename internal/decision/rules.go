package decision

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// Confidence heuristic bounds. Approvals start at the base and gain small
// increments for corroborating data; every fraud signal costs a step.
const (
	confidenceBase          = 0.92
	confidenceWeatherBonus  = 0.03
	confidenceCustomerBonus = 0.02
	confidenceCap           = 0.99
	confidenceFraudPenalty  = 0.10
	confidenceFloor         = 0.50
	confidenceDenial        = 0.95

	// Affected-customer count above which an outage is considered
	// independently corroborated.
	largeOutageCustomers = 5000
)

var sixty = decimal.NewFromInt(60)

// RuleEngine is the deterministic decision strategy. Given identical inputs
// it produces identical results, reasoning text included.
type RuleEngine struct {
	checks []FraudCheck
	logger *slog.Logger
}

// NewRuleEngine creates the deterministic strategy with the given fraud
// checks. Checks run on every decision; their signal codes land on the
// result's FraudSignals.
func NewRuleEngine(logger *slog.Logger, checks ...FraudCheck) *RuleEngine {
	return &RuleEngine{checks: checks, logger: logger}
}

// Decide applies the threshold, severity, and payout rules.
func (e *RuleEngine) Decide(_ context.Context, in Input) domain.ValidationResult {
	duration := in.Outage.EffectiveDuration(in.Now)
	threshold := in.Policy.ThresholdMinutes
	excess := duration - threshold

	flags := e.runChecks(in)
	if len(flags) > 0 {
		e.logger.Debug("fraud signals raised",
			"policy_id", in.Policy.PolicyID,
			"outage_event_id", in.Outage.EventID,
			"signals", flags)
	}

	// Planned outages are never covered, regardless of duration.
	if slices.Contains(flags, FlagPlannedMaintenance) {
		return domain.ValidationResult{
			Decision:        domain.DecisionDenied,
			ConfidenceScore: confidenceDenial,
			PayoutAmount:    decimal.Zero,
			Reasoning: fmt.Sprintf(
				"reported cause %q is planned maintenance; planned outages are not covered",
				in.Outage.ReportedCause),
			Evidence: []domain.Evidence{
				{Type: "reported_cause", Value: in.Outage.ReportedCause},
				{Type: "duration", Value: fmt.Sprintf("%d minutes", duration)},
			},
			FraudSignals:       flags,
			SeverityAssessment: "low",
			WeatherFactor:      1.0,
		}
	}

	if excess <= 0 {
		return domain.ValidationResult{
			Decision:        domain.DecisionDenied,
			ConfidenceScore: confidenceDenial,
			PayoutAmount:    decimal.Zero,
			Reasoning: fmt.Sprintf(
				"outage duration (%d min) does not exceed policy threshold (%d min)",
				duration, threshold),
			Evidence: []domain.Evidence{
				{Type: "duration", Value: fmt.Sprintf("%d minutes", duration)},
				{Type: "threshold", Value: fmt.Sprintf("%d minutes", threshold)},
			},
			FraudSignals:       flags,
			SeverityAssessment: "low",
			WeatherFactor:      1.0,
		}
	}

	factor, severity := WeatherFactor(in.Weather)

	base := decimal.NewFromInt(int64(excess)).Div(sixty).Mul(in.Policy.HourlyRate)
	adjusted := base.Mul(decimal.NewFromFloat(factor))
	payout := decimal.Min(adjusted, in.Policy.MaxPayout).Round(2)

	return domain.ValidationResult{
		Decision:        domain.DecisionApproved,
		ConfidenceScore: e.confidence(in, flags),
		PayoutAmount:    payout,
		Reasoning: fmt.Sprintf(
			"outage %d min, threshold %d min, excess %d min; weather severity %s (%.1fx); payout $%s",
			duration, threshold, excess, severity, factor, payout.StringFixed(2)),
		Evidence: []domain.Evidence{
			{Type: "duration", Value: fmt.Sprintf("%d minutes", duration)},
			{Type: "threshold", Value: fmt.Sprintf("%d minutes", threshold)},
			{Type: "weather", Value: fmt.Sprintf("%s (%.1fx)", severity, factor)},
			{Type: "payout", Value: "$" + payout.StringFixed(2)},
		},
		FraudSignals:       flags,
		SeverityAssessment: severity,
		WeatherFactor:      factor,
	}
}

func (e *RuleEngine) runChecks(in Input) []string {
	var flags []string
	for _, check := range e.checks {
		flags = append(flags, check(in)...)
	}
	return flags
}

// confidence scores an approval. Weather data and a large affected-customer
// count corroborate the claim; fraud signals discount it.
func (e *RuleEngine) confidence(in Input, flags []string) float64 {
	score := confidenceBase
	if in.Weather != nil {
		score += confidenceWeatherBonus
	}
	if in.Outage.AffectedCustomers > largeOutageCustomers {
		score += confidenceCustomerBonus
	}
	if score > confidenceCap {
		score = confidenceCap
	}
	score -= confidenceFraudPenalty * float64(len(flags))
	if score < confidenceFloor {
		score = confidenceFloor
	}
	return score
}

// WeatherFactor maps a weather observation onto the payout multiplier and
// severity label. Wind is the peak of sustained speed and gust. No
// observation means no adjustment.
func WeatherFactor(w *domain.WeatherObservation) (float64, string) {
	if w == nil {
		return 1.0, "low"
	}
	wind := w.PeakWind()
	alertType := strings.ToLower(w.AlertType)
	severeAlert := strings.Contains(alertType, "severe") || strings.Contains(alertType, "hurricane")

	switch {
	case w.SevereWeatherAlert && (severeAlert || wind > 55):
		return 1.5, "severe"
	case w.SevereWeatherAlert || wind > 40:
		return 1.2, "high"
	case wind > 25:
		return 1.1, "medium"
	default:
		return 1.0, "low"
	}
}
