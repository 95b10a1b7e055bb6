// Package decision implements the claims decision engine: given a policy, an
// outage, and optional weather, produce a validation verdict. Two strategies
// implement the same interface — a deterministic rule engine and an
// LLM-backed advisor that falls back to the rules on any failure — so the
// caller constructs one at startup and never branches again.
package decision

import (
	"context"
	"time"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// Input is everything a strategy may consider for one claim. RecentClaimCount
// is the number of claims already filed for the policy within the fraud
// lookback window; the caller queries it so strategies stay free of store
// access.
type Input struct {
	Policy           domain.Policy
	Outage           domain.OutageEvent
	Weather          *domain.WeatherObservation
	RecentClaimCount int
	Now              time.Time
}

// Engine produces a validation verdict. Implementations never fail: a
// decision must always be made, so error paths resolve internally (the
// advisor falls back to the rule engine).
type Engine interface {
	Decide(ctx context.Context, in Input) domain.ValidationResult
}
