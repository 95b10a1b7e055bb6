// Command validate performs integrity checks on a claims scenario fixture:
// policy and outage records, weather observations, and a dry run of the
// decision engine over every triggered (policy, outage) pair. It is the
// pre-flight check for fixtures fed to cmd/seed and for staging data dumps.
//
// Usage:
//
//	go run ./cmd/validate -scenario data/scenario.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/parametric-claims/internal/decision"
	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// scenario is the fixture shape: reference data plus the observations the
// evaluator would see.
type scenario struct {
	Policies []domain.Policy             `json:"policies"`
	Outages  []domain.OutageEvent        `json:"outages"`
	Weather  []domain.WeatherObservation `json:"weather,omitempty"`
	// AsOf pins the evaluation instant so runs are reproducible. Defaults to
	// the latest outage start plus one hour.
	AsOf *time.Time `json:"as_of,omitempty"`
}

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	scenarioPath := flag.String("scenario", "", "path to scenario JSON fixture")
	flag.Parse()

	if *scenarioPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*scenarioPath); code != 0 {
		os.Exit(code)
	}
}

func run(path string) int {
	fmt.Println("=== Claims Scenario Validation ===")
	fmt.Println()

	sc, err := loadScenario(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load scenario: %v\n", err)
		return 1
	}

	now := evaluationInstant(sc)

	phases := []*phase{
		validatePolicies(sc, now),
		validateOutages(sc),
		validateWeather(sc),
		validateDecisions(sc, now),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d policies, %d outages, %d weather observations (as of %s)\n",
		len(sc.Policies), len(sc.Outages), len(sc.Weather), now.Format(time.RFC3339))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func evaluationInstant(sc *scenario) time.Time {
	if sc.AsOf != nil {
		return sc.AsOf.UTC()
	}
	var latest time.Time
	for i := range sc.Outages {
		if sc.Outages[i].OutageStart.After(latest) {
			latest = sc.Outages[i].OutageStart
		}
	}
	if latest.IsZero() {
		return time.Now().UTC()
	}
	return latest.Add(time.Hour).UTC()
}

// ── Phase 1: Policies ──

func validatePolicies(sc *scenario, now time.Time) *phase {
	p := &phase{name: "Phase 1: Policy records"}

	seen := map[string]bool{}
	for i := range sc.Policies {
		pol := &sc.Policies[i]
		pf := func(format string, args ...any) {
			p.errorf("policy %d (%s): "+format, append([]any{i, pol.PolicyID}, args...)...)
		}

		if pol.PolicyID == "" {
			pf("missing policy_id")
			continue
		}
		if seen[pol.PolicyID] {
			pf("duplicate policy_id")
		}
		seen[pol.PolicyID] = true

		if pol.ThresholdMinutes <= 0 {
			pf("threshold_minutes %d is not positive", pol.ThresholdMinutes)
		}
		if !pol.HourlyRate.IsPositive() {
			pf("hourly_rate %s is not positive", pol.HourlyRate)
		}
		if !pol.MaxPayout.IsPositive() {
			pf("max_payout %s is not positive", pol.MaxPayout)
		}
		if pol.Location.ZipCode == "" {
			pf("missing location.zip_code")
		}
		if pol.EffectiveDate != nil && pol.ExpirationDate != nil && pol.ExpirationDate.Before(*pol.EffectiveDate) {
			pf("expiration_date precedes effective_date")
		}
		if pol.Status == "active" && !pol.IsActive(now) {
			pf("status is active but policy is not in force at %s", now.Format(time.RFC3339))
		}
	}
	return p
}

// ── Phase 2: Outages ──

var outageStatuses = map[domain.OutageStatus]bool{
	domain.OutageActive:        true,
	domain.OutageResolved:      true,
	domain.OutageInvestigating: true,
}

func validateOutages(sc *scenario) *phase {
	p := &phase{name: "Phase 2: Outage records"}

	seen := map[string]bool{}
	for i := range sc.Outages {
		o := &sc.Outages[i]
		pf := func(format string, args ...any) {
			p.errorf("outage %d (%s): "+format, append([]any{i, o.EventID}, args...)...)
		}

		if o.EventID == "" {
			pf("missing event_id")
			continue
		}
		if seen[o.EventID] {
			pf("duplicate event_id")
		}
		seen[o.EventID] = true

		if want := domain.OutageEventID(o.UtilityName, o.OutageStart); o.EventID != want {
			pf("event_id does not match utility and start time (expected %s)", want)
		}
		if !outageStatuses[o.Status] {
			pf("status %q not in {active, resolved, investigating}", o.Status)
		}
		if o.OutageStart.IsZero() {
			pf("outage_start is zero")
		}
		if o.Location.ZipCode == "" {
			pf("missing location.zip_code")
		}
		if o.Status == domain.OutageResolved {
			if o.OutageEnd == nil {
				pf("resolved without outage_end")
			} else if o.OutageEnd.Before(o.OutageStart) {
				pf("outage_end precedes outage_start")
			}
			if o.DurationMinutes == nil {
				pf("resolved without duration_minutes")
			}
		}
		if o.DurationMinutes != nil && *o.DurationMinutes < 0 {
			pf("duration_minutes %d is negative", *o.DurationMinutes)
		}
	}
	return p
}

// ── Phase 3: Weather ──

func validateWeather(sc *scenario) *phase {
	p := &phase{name: "Phase 3: Weather observations"}

	for i := range sc.Weather {
		w := &sc.Weather[i]
		pf := func(format string, args ...any) {
			p.errorf("observation %d (%s): "+format, append([]any{i, w.Location.ZipCode}, args...)...)
		}

		if w.Location.ZipCode == "" {
			pf("missing location.zip_code")
		}
		if w.ObservedAt.IsZero() {
			pf("observed_at is zero")
		}
		if w.WindSpeedMPH < 0 || w.WindGustMPH < 0 {
			pf("negative wind speed")
		}
		if w.WindGustMPH > 0 && w.WindGustMPH < w.WindSpeedMPH {
			pf("gust %g below sustained wind %g", w.WindGustMPH, w.WindSpeedMPH)
		}
		if w.SevereWeatherAlert && w.AlertType == "" {
			pf("severe_weather_alert set without alert_type")
		}
	}
	return p
}

// ── Phase 4: Decision dry run ──
// Re-runs the rule engine over every triggered pair and checks the verdict
// invariants the pipeline relies on.

func validateDecisions(sc *scenario, now time.Time) *phase {
	p := &phase{name: "Phase 4: Decision dry run"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := decision.NewRuleEngine(logger, decision.DefaultChecks(decision.DefaultFraudConfig())...)

	weatherByZip := map[string]*domain.WeatherObservation{}
	for i := range sc.Weather {
		w := sc.Weather[i]
		prev, ok := weatherByZip[w.Location.ZipCode]
		if !ok || w.ObservedAt.After(prev.ObservedAt) {
			weatherByZip[w.Location.ZipCode] = &w
		}
	}

	ctx := context.Background()
	triggered := 0
	for _, o := range sc.Outages {
		for _, pol := range sc.Policies {
			if pol.Location.ZipCode != o.Location.ZipCode || !pol.IsActive(now) {
				continue
			}
			if o.EffectiveDuration(now) < pol.ThresholdMinutes {
				continue
			}
			triggered++
			checkVerdict(ctx, p, engine, pol, o, weatherByZip[o.Location.ZipCode], now)
		}
	}

	fmt.Printf("  Note: %d triggered (policy, outage) pair(s) evaluated\n", triggered)
	return p
}

func checkVerdict(ctx context.Context, p *phase, engine decision.Engine, pol domain.Policy, o domain.OutageEvent, w *domain.WeatherObservation, now time.Time) {
	in := decision.Input{Policy: pol, Outage: o, Weather: w, Now: now}
	result := engine.Decide(ctx, in)
	id := fmt.Sprintf("%s x %s", pol.PolicyID, o.EventID)

	if result.Decision != domain.DecisionApproved && result.Decision != domain.DecisionDenied {
		p.errorf("%s: decision %q not in {approved, denied}", id, result.Decision)
	}
	if result.ConfidenceScore < 0 || result.ConfidenceScore > 1 {
		p.errorf("%s: confidence %g outside [0, 1]", id, result.ConfidenceScore)
	}
	if result.Decision == domain.DecisionDenied && !result.PayoutAmount.IsZero() {
		p.errorf("%s: denied with non-zero payout %s", id, result.PayoutAmount)
	}
	if result.Decision == domain.DecisionApproved {
		if !result.PayoutAmount.IsPositive() {
			p.errorf("%s: approved with non-positive payout %s", id, result.PayoutAmount)
		}
		if result.PayoutAmount.GreaterThan(pol.MaxPayout) {
			p.errorf("%s: payout %s exceeds max_payout %s", id, result.PayoutAmount, pol.MaxPayout)
		}
	}
	if result.Reasoning == "" {
		p.errorf("%s: verdict has no reasoning", id)
	}

	// The evaluator depends on this: same input, same verdict.
	again := engine.Decide(ctx, in)
	if again.Decision != result.Decision || !again.PayoutAmount.Equal(result.PayoutAmount) {
		p.errorf("%s: engine is not deterministic (%s/%s vs %s/%s)",
			id, result.Decision, result.PayoutAmount, again.Decision, again.PayoutAmount)
	}
}
