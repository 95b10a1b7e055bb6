package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// systemInstruction constrains the model to the response schema. Parsing is
// strict; anything off-schema triggers the rule-engine fallback.
const systemInstruction = "You are an expert parametric insurance claims validator. " +
	"Always respond with valid JSON only, no prose outside the JSON object."

// ChatCompleter issues one chat completion round trip against a reasoning
// endpoint.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Advisor is the LLM-backed decision strategy. On any failure — transport,
// timeout, schema parse, missing configuration — it falls back to the
// deterministic rules; Decide always returns a usable verdict.
type Advisor struct {
	chat     ChatCompleter
	fallback Engine
	timeout  time.Duration
	logger   *slog.Logger

	// onFallback is invoked once per fallback, for metrics. May be nil.
	onFallback func()
}

// NewAdvisor wires the advisor strategy. fallback is required; chat may be
// nil, in which case every decision falls through to the rules.
func NewAdvisor(chat ChatCompleter, fallback Engine, timeout time.Duration, logger *slog.Logger, onFallback func()) *Advisor {
	return &Advisor{
		chat:       chat,
		fallback:   fallback,
		timeout:    timeout,
		logger:     logger,
		onFallback: onFallback,
	}
}

// Decide consults the reasoning endpoint, falling back to the rule engine on
// any error.
func (a *Advisor) Decide(ctx context.Context, in Input) domain.ValidationResult {
	result, err := a.consult(ctx, in)
	if err != nil {
		a.logger.Warn("ai advisor unavailable, using rule engine",
			"policy_id", in.Policy.PolicyID,
			"outage_event_id", in.Outage.EventID,
			"error", err,
		)
		if a.onFallback != nil {
			a.onFallback()
		}
		return a.fallback.Decide(ctx, in)
	}
	return enforcePlannedMaintenance(result, in)
}

// enforcePlannedMaintenance overrides the model verdict for planned outages.
// Coverage exclusions are not the model's call to make.
func enforcePlannedMaintenance(result domain.ValidationResult, in Input) domain.ValidationResult {
	if len(PlannedMaintenanceCheck(in)) == 0 {
		return result
	}
	result.Decision = domain.DecisionDenied
	result.ConfidenceScore = confidenceDenial
	result.PayoutAmount = decimal.Zero
	result.Reasoning = fmt.Sprintf(
		"reported cause %q is planned maintenance; planned outages are not covered",
		in.Outage.ReportedCause)
	if !slices.Contains(result.FraudSignals, FlagPlannedMaintenance) {
		result.FraudSignals = append(result.FraudSignals, FlagPlannedMaintenance)
	}
	return result
}

// consult is the explicit two-branch boundary: either a fully validated
// result or an error the caller resolves by fallback.
func (a *Advisor) consult(ctx context.Context, in Input) (domain.ValidationResult, error) {
	if a.chat == nil {
		return domain.ValidationResult{}, errors.New("advisor not configured")
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.chat.Complete(cctx, systemInstruction, buildPrompt(in))
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("advisor completion: %w", err)
	}

	return parseAdvisorResponse(text, in.Policy.MaxPayout)
}

// buildPrompt embeds the claim context and the decision rules the model must
// apply. The schema in the prompt mirrors advisorResponse.
func buildPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Validate this parametric business-interruption claim.

POLICY:
- Policy ID: %s
- Business: %s
- Location: zip %s (lat %.4f, lon %.4f)
- Threshold: %d minutes
- Hourly Rate: $%s/hour
- Maximum Payout: $%s

OUTAGE:
- Event ID: %s
- Utility: %s
- Affected Customers: %d
- Outage Start: %s
- Duration: %d minutes
- Reported Cause: %s
- Status: %s
`,
		in.Policy.PolicyID,
		in.Policy.BusinessName,
		in.Policy.Location.ZipCode, in.Policy.Location.Latitude, in.Policy.Location.Longitude,
		in.Policy.ThresholdMinutes,
		in.Policy.HourlyRate.StringFixed(2),
		in.Policy.MaxPayout.StringFixed(2),
		in.Outage.EventID,
		in.Outage.UtilityName,
		in.Outage.AffectedCustomers,
		in.Outage.OutageStart.UTC().Format(time.RFC3339),
		in.Outage.EffectiveDuration(in.Now),
		in.Outage.ReportedCause,
		in.Outage.Status,
	)

	if w := in.Weather; w != nil {
		fmt.Fprintf(&b, `
WEATHER:
- Temperature: %.0fF
- Wind Speed: %.0f mph
- Wind Gusts: %.0f mph
- Conditions: %s
- Severe Weather Alert: %t
- Alert Type: %s
`,
			w.TemperatureF, w.WindSpeedMPH, w.WindGustMPH,
			w.Conditions, w.SevereWeatherAlert, w.AlertType,
		)
	}

	if in.RecentClaimCount > 0 {
		fmt.Fprintf(&b, "\nCLAIM HISTORY:\n- Claims filed for this policy in the lookback window: %d\n", in.RecentClaimCount)
	}

	b.WriteString(`
RULES:
- duration above threshold = approved; at or below = denied
- planned_maintenance = denied regardless of duration
- weather multiplier: low 1.0, medium 1.1, high 1.2, severe 1.5
- payout = (excess minutes / 60) * hourly rate * multiplier, capped at maximum payout

Respond with ONLY valid JSON:
{"decision":"approved" or "denied","confidence_score":0.0 to 1.0,"payout_amount":number,"reasoning":"...","evidence":[{"type":"...","value":"..."}],"fraud_signals":[],"severity_assessment":"low"|"medium"|"high"|"severe","weather_factor":number}
`)

	return b.String()
}

// advisorResponse is the fixed JSON schema the model is instructed to emit.
type advisorResponse struct {
	Decision           string            `json:"decision"`
	ConfidenceScore    float64           `json:"confidence_score"`
	PayoutAmount       decimal.Decimal   `json:"payout_amount"`
	Reasoning          string            `json:"reasoning"`
	Evidence           []domain.Evidence `json:"evidence"`
	FraudSignals       []string          `json:"fraud_signals"`
	SeverityAssessment string            `json:"severity_assessment"`
	WeatherFactor      float64           `json:"weather_factor"`
}

// parseAdvisorResponse parses the model output, tolerating markdown code
// fences, and clamps numeric fields into their valid ranges. The payout cap
// is enforced here as well: the model never gets to exceed the policy limit.
func parseAdvisorResponse(text string, maxPayout decimal.Decimal) (domain.ValidationResult, error) {
	var resp advisorResponse
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &resp); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("parse advisor response: %w", err)
	}

	var verdict domain.Decision
	switch strings.ToLower(strings.TrimSpace(resp.Decision)) {
	case "approved", "approve":
		verdict = domain.DecisionApproved
	case "denied", "deny":
		verdict = domain.DecisionDenied
	default:
		return domain.ValidationResult{}, fmt.Errorf("advisor decision %q is not approve/deny", resp.Decision)
	}

	confidence := resp.ConfidenceScore
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	payout := resp.PayoutAmount
	if verdict == domain.DecisionDenied || payout.IsNegative() {
		payout = decimal.Zero
	}
	payout = decimal.Min(payout, maxPayout).Round(2)

	severity := resp.SeverityAssessment
	switch severity {
	case "low", "medium", "high", "severe":
	default:
		severity = "low"
	}

	factor := resp.WeatherFactor
	if factor < 1.0 || factor > 1.5 {
		factor = 1.0
	}

	return domain.ValidationResult{
		Decision:           verdict,
		ConfidenceScore:    confidence,
		PayoutAmount:       payout,
		Reasoning:          resp.Reasoning,
		Evidence:           resp.Evidence,
		FraudSignals:       resp.FraudSignals,
		SeverityAssessment: severity,
		WeatherFactor:      factor,
	}, nil
}

// stripCodeFence removes a wrapping markdown code fence, with or without a
// language tag, a formatting artifact some models add despite instructions.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
