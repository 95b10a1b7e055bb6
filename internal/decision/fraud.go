package decision

import "time"

// Fraud signal codes attached to validation results.
const (
	FlagPlannedMaintenance  = "planned_maintenance_not_covered"
	FlagClaimFrequency      = "excessive_claim_frequency"
	FlagWeatherInconsistent = "weather_inconsistent_with_cause"
)

// FraudCheck inspects a claim context and returns zero or more signal codes.
// Checks are pure: any history they need arrives on the Input.
type FraudCheck func(in Input) []string

// FraudConfig holds the thresholds for the heuristic checks. The values are
// configuration, not policy terms; operators tune them per book of business.
type FraudConfig struct {
	// MaxClaimsPerWindow is the number of prior claims within ClaimWindow
	// above which claim frequency is flagged.
	MaxClaimsPerWindow int

	// ClaimWindow is the rolling lookback for the frequency check. The
	// evaluator queries claim history with it and supplies the count.
	ClaimWindow time.Duration

	// StormWindFloorMPH is the minimum peak wind expected when an outage is
	// attributed to weather. Calmer observations flag an inconsistency.
	StormWindFloorMPH float64
}

// DefaultFraudConfig returns the baseline thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		MaxClaimsPerWindow: 5,
		ClaimWindow:        30 * 24 * time.Hour,
		StormWindFloorMPH:  20,
	}
}

// weatherAttributedCauses are reported causes that imply storm conditions at
// the outage location.
var weatherAttributedCauses = map[string]bool{
	"storm_damage": true,
	"high_winds":   true,
	"lightning":    true,
	"winter_storm": true,
}

// PlannedMaintenanceCheck flags outages the utility reported as planned
// maintenance. The rule engine treats this flag as an automatic denial.
func PlannedMaintenanceCheck(in Input) []string {
	if in.Outage.ReportedCause == "planned_maintenance" {
		return []string{FlagPlannedMaintenance}
	}
	return nil
}

// ClaimFrequencyCheck flags policies filing more claims inside the rolling
// window than the configured maximum.
func ClaimFrequencyCheck(cfg FraudConfig) FraudCheck {
	return func(in Input) []string {
		if in.RecentClaimCount > cfg.MaxClaimsPerWindow {
			return []string{FlagClaimFrequency}
		}
		return nil
	}
}

// WeatherConsistencyCheck flags storm-attributed outages whose weather
// observation shows calm conditions and no alert. Missing weather data is
// not an inconsistency.
func WeatherConsistencyCheck(cfg FraudConfig) FraudCheck {
	return func(in Input) []string {
		if in.Weather == nil || !weatherAttributedCauses[in.Outage.ReportedCause] {
			return nil
		}
		if in.Weather.SevereWeatherAlert || in.Weather.PeakWind() >= cfg.StormWindFloorMPH {
			return nil
		}
		return []string{FlagWeatherInconsistent}
	}
}

// DefaultChecks returns the standard check set in evaluation order.
func DefaultChecks(cfg FraudConfig) []FraudCheck {
	return []FraudCheck{
		PlannedMaintenanceCheck,
		ClaimFrequencyCheck(cfg),
		WeatherConsistencyCheck(cfg),
	}
}
