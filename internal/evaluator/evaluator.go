// Package evaluator implements the threshold evaluator: for every announced
// outage it checks each affected policy's trigger, runs the decision engine,
// and files a claim. Claim IDs are deterministic, so redelivered
// announcements converge on the same claim instead of duplicating it.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parametric-claims/internal/decision"
	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/monitor"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

// Store is the slice of the ledger the evaluator uses.
type Store interface {
	GetOutage(ctx context.Context, eventID string) (domain.OutageEvent, error)
	GetPolicy(ctx context.Context, policyID string) (domain.Policy, error)
	InsertClaim(ctx context.Context, c domain.Claim) (bool, error)
	GetClaim(ctx context.Context, claimID string) (domain.Claim, error)
	RecentWeather(ctx context.Context, zip string, lookback time.Duration, now time.Time) (domain.WeatherObservation, error)
	CountRecentClaims(ctx context.Context, policyID string, since time.Time) (int, error)
}

// Fetcher delivers inbound bus messages.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.InboundEvent, error)
}

// Evaluator consumes outage announcements and files claims.
type Evaluator struct {
	store     Store
	fetcher   Fetcher
	engine    decision.Engine
	publisher monitor.Publisher
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger

	weatherLookback time.Duration
	fraudWindow     time.Duration
	ready           atomic.Bool
}

// New creates the threshold evaluator.
func New(store Store, fetcher Fetcher, engine decision.Engine, publisher monitor.Publisher, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger, weatherLookback, fraudWindow time.Duration) *Evaluator {
	return &Evaluator{
		store:           store,
		fetcher:         fetcher,
		engine:          engine,
		publisher:       publisher,
		metrics:         metrics,
		clock:           clock,
		logger:          logger,
		weatherLookback: weatherLookback,
		fraudWindow:     fraudWindow,
	}
}

// CheckReadiness returns nil once the consume loop is running.
func (e *Evaluator) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("threshold evaluator is not consuming yet")
	}
	return nil
}

// Run consumes outage announcements until the context is cancelled. A
// transient store failure leaves the message uncommitted for redelivery;
// everything else commits, including messages the evaluator skips.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info("threshold evaluator started")
	e.metrics.WorkerRunning.WithLabelValues("threshold_evaluator").Set(1)
	defer e.metrics.WorkerRunning.WithLabelValues("threshold_evaluator").Set(0)
	e.ready.Store(true)

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msg, err := e.fetcher.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.logger.Info("threshold evaluator stopping", "reason", ctx.Err())
				return nil
			}
			e.logger.Error("fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-e.clock.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if err := e.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Leave uncommitted; the group redelivers it.
			e.logger.Error("outage announcement handling failed",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}
		if err := msg.Commit(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("offset commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// Handle processes one bus message. A nil return means the message is done
// with, whether it was evaluated or skipped.
func (e *Evaluator) Handle(ctx context.Context, msg domain.InboundEvent) error {
	env, err := domain.ParseEnvelope(msg)
	if err != nil {
		// Malformed messages cannot improve on redelivery.
		e.logger.Warn("skipping malformed message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if env.EventType != domain.EventOutageDetected {
		return nil
	}

	var payload domain.OutageDetectedPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		e.logger.Warn("skipping malformed outage announcement", "event_id", env.ID, "error", err)
		return nil
	}

	// Re-read for fresh state; the announcement's duration snapshot may be
	// minutes stale by now.
	outage, err := e.store.GetOutage(ctx, payload.EventID)
	if errors.Is(err, domain.ErrNotFound) {
		e.logger.Warn("announced outage not in ledger", "outage_event_id", payload.EventID)
		return nil
	}
	if err != nil {
		return err
	}

	now := e.clock.Now().UTC()
	for _, policyID := range payload.AffectedPolicies {
		if err := e.evaluatePolicy(ctx, policyID, outage, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("policy evaluation failed",
				"policy_id", policyID, "outage_event_id", outage.EventID, "error", err)
		}
	}
	return nil
}

// evaluatePolicy runs the trigger check and decision for one policy. The
// conditional insert is the idempotency point: when it loses to an earlier
// delivery, the canonical claim is re-read and its verdict republished, so a
// crash between insert and publish still heals.
func (e *Evaluator) evaluatePolicy(ctx context.Context, policyID string, outage domain.OutageEvent, now time.Time) error {
	start := e.clock.Now()
	defer func() {
		e.metrics.EvaluationDuration.Observe(e.clock.Since(start).Seconds())
	}()

	policy, err := e.store.GetPolicy(ctx, policyID)
	if errors.Is(err, domain.ErrNotFound) {
		e.logger.Warn("announced policy not in ledger", "policy_id", policyID)
		return nil
	}
	if err != nil {
		return err
	}
	if !policy.IsActive(now) {
		e.logger.Debug("policy not in force, skipping", "policy_id", policyID)
		return nil
	}

	duration := outage.EffectiveDuration(now)
	if duration < policy.ThresholdMinutes {
		e.logger.Debug("threshold not met",
			"policy_id", policyID,
			"duration_minutes", duration,
			"threshold_minutes", policy.ThresholdMinutes)
		return nil
	}

	claimID := domain.ClaimID(policyID, outage.EventID)
	result := e.engine.Decide(ctx, decision.Input{
		Policy:           policy,
		Outage:           outage,
		Weather:          e.lookupWeather(ctx, outage.Location.ZipCode, now),
		RecentClaimCount: e.recentClaims(ctx, policyID, now),
		Now:              now,
	})

	claim := buildClaim(claimID, policyID, outage.EventID, result, now)
	created, err := e.store.InsertClaim(ctx, claim)
	if err != nil {
		return err
	}

	if created {
		e.metrics.ClaimsFiled.WithLabelValues(string(result.Decision)).Inc()
		e.publishThresholdExceeded(ctx, policy, outage, duration)
		e.logger.Info("claim filed",
			"claim_id", claimID,
			"policy_id", policyID,
			"outage_event_id", outage.EventID,
			"decision", result.Decision,
			"payout_amount", claim.PayoutAmount.String(),
			"confidence", claim.AIConfidenceScore)
	} else {
		// The claim already exists; republish its verdict from the ledger
		// rather than from this evaluation, which may differ.
		e.metrics.DuplicateClaims.Inc()
		claim, err = e.store.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		e.logger.Debug("claim already filed", "claim_id", claimID)
	}

	e.publishDecision(ctx, claim)
	return nil
}

// lookupWeather fetches the freshest observation for the zip, tolerating
// absence and lookup failures alike. A decision without weather is still a
// decision.
func (e *Evaluator) lookupWeather(ctx context.Context, zip string, now time.Time) *domain.WeatherObservation {
	w, err := e.store.RecentWeather(ctx, zip, e.weatherLookback, now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		e.logger.Warn("weather lookup failed, deciding without it", "zip_code", zip, "error", err)
		return nil
	}
	return &w
}

func (e *Evaluator) recentClaims(ctx context.Context, policyID string, now time.Time) int {
	n, err := e.store.CountRecentClaims(ctx, policyID, now.Add(-e.fraudWindow))
	if err != nil {
		e.logger.Warn("recent claim count failed, assuming zero", "policy_id", policyID, "error", err)
		return 0
	}
	return n
}

func (e *Evaluator) publishThresholdExceeded(ctx context.Context, policy domain.Policy, outage domain.OutageEvent, duration int) {
	payload := domain.ThresholdExceededPayload{
		PolicyID:             policy.PolicyID,
		EventID:              outage.EventID,
		DurationMinutes:      duration,
		ThresholdMinutes:     policy.ThresholdMinutes,
		MinutesOverThreshold: duration - policy.ThresholdMinutes,
		Location:             outage.Location,
		UtilityName:          outage.UtilityName,
		AffectedCustomers:    outage.AffectedCustomers,
	}
	e.publisher.Publish(ctx, domain.EventThresholdExceeded, domain.PolicySubject(policy.PolicyID), payload)
}

func (e *Evaluator) publishDecision(ctx context.Context, claim domain.Claim) {
	eventType := domain.EventClaimApproved
	if claim.Status == domain.ClaimDenied {
		eventType = domain.EventClaimDenied
	}
	payload := domain.ClaimDecisionPayload{
		ClaimID:            claim.ClaimID,
		PolicyID:           claim.PolicyID,
		OutageEventID:      claim.OutageEventID,
		Status:             string(claim.Status),
		PayoutAmount:       claim.PayoutAmount,
		AIConfidenceScore:  claim.AIConfidenceScore,
		AIReasoning:        claim.AIReasoning,
		FraudFlags:         claim.FraudFlags,
		SeverityAssessment: claim.SeverityAssessment,
		WeatherFactor:      claim.WeatherFactor,
	}
	e.publisher.Publish(ctx, eventType, domain.ClaimSubject(claim.ClaimID), payload)
}

// buildClaim materializes a decision into a claim record.
func buildClaim(claimID, policyID, outageEventID string, result domain.ValidationResult, now time.Time) domain.Claim {
	claim := domain.Claim{
		ClaimID:            claimID,
		PolicyID:           policyID,
		OutageEventID:      outageEventID,
		FiledAt:            now,
		ValidatedAt:        &now,
		PayoutAmount:       result.PayoutAmount,
		AIConfidenceScore:  result.ConfidenceScore,
		AIReasoning:        result.Reasoning,
		FraudFlags:         result.FraudSignals,
		WeatherFactor:      result.WeatherFactor,
		SeverityAssessment: result.SeverityAssessment,
	}
	if result.Decision == domain.DecisionApproved {
		claim.Status = domain.ClaimApproved
		claim.ApprovedAt = &now
	} else {
		claim.Status = domain.ClaimDenied
		claim.DeniedAt = &now
		claim.DenialReason = result.Reasoning
	}
	return claim
}
