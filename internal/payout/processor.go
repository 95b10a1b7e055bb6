// Package payout implements the payout processor: it consumes approved
// claim events, settles them through the payment gateway, and records the
// outcome. The payout ID is deterministic per claim and doubles as the
// gateway idempotency key, so a claim is paid at most once no matter how
// often its approval is redelivered.
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/couchcryptid/parametric-claims/internal/adapter/webhook"
	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/evaluator"
	"github.com/couchcryptid/parametric-claims/internal/monitor"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

// Store is the slice of the ledger the payout processor uses.
type Store interface {
	GetClaim(ctx context.Context, claimID string) (domain.Claim, error)
	UpdateClaim(ctx context.Context, claimID string, patch domain.ClaimPatch) (bool, error)
	InsertPayout(ctx context.Context, p domain.Payout) (bool, error)
	GetPayout(ctx context.Context, payoutID string) (domain.Payout, error)
	UpdatePayout(ctx context.Context, payoutID string, patch domain.PayoutPatch) (bool, error)
}

// Gateway settles transfers and returns the gateway transaction ID.
type Gateway interface {
	Settle(ctx context.Context, payoutID, policyID string, amount decimal.Decimal) (string, error)
}

// Notifier delivers best-effort settlement notifications.
type Notifier interface {
	Notify(ctx context.Context, note webhook.Notification)
}

const paymentMethod = "ach_transfer"

// Processor consumes approved claims and executes payouts.
type Processor struct {
	store     Store
	fetcher   evaluator.Fetcher
	gateway   Gateway
	publisher monitor.Publisher
	notifier  Notifier
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
	ready     atomic.Bool
}

// New creates the payout processor.
func New(store Store, fetcher evaluator.Fetcher, gateway Gateway, publisher monitor.Publisher, notifier Notifier, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger) *Processor {
	return &Processor{
		store:     store,
		fetcher:   fetcher,
		gateway:   gateway,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}
}

// CheckReadiness returns nil once the consume loop is running.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("payout processor is not consuming yet")
	}
	return nil
}

// Run consumes claim decisions until the context is cancelled. Transient
// store failures leave the message uncommitted for redelivery; settled,
// skipped, and terminally failed payouts all commit.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("payout processor started")
	p.metrics.WorkerRunning.WithLabelValues("payout_processor").Set(1)
	defer p.metrics.WorkerRunning.WithLabelValues("payout_processor").Set(0)
	p.ready.Store(true)

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		msg, err := p.fetcher.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("payout processor stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-p.clock.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if err := p.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("claim decision handling failed",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}
		if err := msg.Commit(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("offset commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// Handle processes one bus message. A nil return means the message is done
// with, whether it was settled, skipped, or terminally failed.
func (p *Processor) Handle(ctx context.Context, msg domain.InboundEvent) error {
	env, err := domain.ParseEnvelope(msg)
	if err != nil {
		p.logger.Warn("skipping malformed message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if env.EventType != domain.EventClaimApproved {
		return nil
	}

	var payload domain.ClaimDecisionPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		p.logger.Warn("skipping malformed claim decision", "event_id", env.ID, "error", err)
		return nil
	}
	if payload.ClaimID == "" || payload.PolicyID == "" {
		p.skip("claim decision missing identifiers", "event_id", env.ID)
		return nil
	}

	// The event is a pointer, not a source of truth. Amount and status come
	// from the ledger claim.
	claim, err := p.store.GetClaim(ctx, payload.ClaimID)
	if errors.Is(err, domain.ErrNotFound) {
		p.skip("approved claim not in ledger", "claim_id", payload.ClaimID)
		return nil
	}
	if err != nil {
		return err
	}

	switch claim.Status {
	case domain.ClaimPaid:
		p.logger.Debug("claim already paid", "claim_id", claim.ClaimID)
		p.metrics.PayoutsProcessed.WithLabelValues("skipped").Inc()
		return nil
	case domain.ClaimApproved:
	default:
		p.skip("claim not approved", "claim_id", claim.ClaimID, "status", string(claim.Status))
		return nil
	}
	if !claim.PayoutAmount.IsPositive() {
		p.skip("approved claim has non-positive payout", "claim_id", claim.ClaimID, "amount", claim.PayoutAmount.String())
		return nil
	}

	return p.settle(ctx, claim)
}

// settle creates or resumes the payout for an approved claim and runs it to
// a terminal state.
func (p *Processor) settle(ctx context.Context, claim domain.Claim) error {
	payoutID := domain.PayoutID(claim.ClaimID)
	initiatedAt := p.clock.Now().UTC()

	created, err := p.store.InsertPayout(ctx, domain.Payout{
		PayoutID:      payoutID,
		ClaimID:       claim.ClaimID,
		PolicyID:      claim.PolicyID,
		Amount:        claim.PayoutAmount,
		Status:        domain.PayoutPending,
		InitiatedAt:   initiatedAt,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		return err
	}
	if !created {
		existing, err := p.store.GetPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		// The payout row already carries the real initiation time.
		initiatedAt = existing.InitiatedAt
		switch existing.Status {
		case domain.PayoutCompleted:
			p.logger.Debug("payout already completed", "payout_id", payoutID)
			p.metrics.PayoutsProcessed.WithLabelValues("skipped").Inc()
			return nil
		case domain.PayoutFailed:
			// Terminal; a failed settlement is not retried automatically.
			p.logger.Debug("payout previously failed", "payout_id", payoutID)
			p.metrics.PayoutsProcessed.WithLabelValues("skipped").Inc()
			return nil
		}
		// Pending or processing from an interrupted run: resume. The gateway
		// idempotency key makes the retry safe.
		p.logger.Info("resuming interrupted payout", "payout_id", payoutID, "status", string(existing.Status))
	}

	processing := domain.PayoutProcessing
	if _, err := p.store.UpdatePayout(ctx, payoutID, domain.PayoutPatch{Status: &processing}); err != nil {
		return err
	}

	start := p.clock.Now()
	txnID, err := p.gateway.Settle(ctx, payoutID, claim.PolicyID, claim.PayoutAmount)
	p.metrics.SettlementDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a gateway verdict; leave the payout processing so
			// the next delivery resumes it.
			return ctx.Err()
		}
		failed := domain.PayoutFailed
		if _, uerr := p.store.UpdatePayout(ctx, payoutID, domain.PayoutPatch{Status: &failed}); uerr != nil {
			return uerr
		}
		p.metrics.PayoutsProcessed.WithLabelValues("failed").Inc()
		p.logger.Error("settlement failed",
			"payout_id", payoutID,
			"claim_id", claim.ClaimID,
			"amount", claim.PayoutAmount.String(),
			"error", err)
		return nil
	}

	completedAt := p.clock.Now().UTC()
	completed := domain.PayoutCompleted
	if _, err := p.store.UpdatePayout(ctx, payoutID, domain.PayoutPatch{
		Status:        &completed,
		CompletedAt:   &completedAt,
		TransactionID: &txnID,
	}); err != nil {
		return err
	}
	paid := domain.ClaimPaid
	if _, err := p.store.UpdateClaim(ctx, claim.ClaimID, domain.ClaimPatch{Status: &paid}); err != nil {
		return err
	}

	p.metrics.PayoutsProcessed.WithLabelValues("completed").Inc()
	p.logger.Info("payout completed",
		"payout_id", payoutID,
		"claim_id", claim.ClaimID,
		"policy_id", claim.PolicyID,
		"amount", claim.PayoutAmount.String(),
		"transaction_id", txnID)

	p.publisher.Publish(ctx, domain.EventPayoutProcessed, domain.PayoutSubject(payoutID), domain.PayoutProcessedPayload{
		PayoutID:      payoutID,
		ClaimID:       claim.ClaimID,
		PolicyID:      claim.PolicyID,
		Amount:        claim.PayoutAmount,
		TransactionID: txnID,
		PaymentMethod: paymentMethod,
		Status:        string(domain.PayoutCompleted),
		InitiatedAt:   initiatedAt.Format(time.RFC3339),
		CompletedAt:   completedAt.Format(time.RFC3339),
	})

	p.notifier.Notify(ctx, webhook.Notification{
		PayoutID:      payoutID,
		ClaimID:       claim.ClaimID,
		PolicyID:      claim.PolicyID,
		Amount:        claim.PayoutAmount,
		TransactionID: txnID,
		CompletedAt:   completedAt,
	})
	return nil
}

func (p *Processor) skip(msg string, args ...any) {
	p.logger.Warn(msg, args...)
	p.metrics.PayoutsProcessed.WithLabelValues("skipped").Inc()
}
