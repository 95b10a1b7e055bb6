// Package monitor contains the timer-driven workers that watch the outage
// ledger: the outage monitor, which announces active outages affecting
// insured locations, and the resolution monitor, which closes out outages
// the upstream feed never resolves.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

// OutageStore is the slice of the ledger the outage monitor reads.
type OutageStore interface {
	ActiveOutages(ctx context.Context) ([]domain.OutageEvent, error)
	PoliciesInZip(ctx context.Context, zip string) ([]domain.Policy, error)
	PoliciesNear(ctx context.Context, lat, lon, radiusMiles float64) ([]domain.Policy, error)
}

// Publisher emits pipeline events. The boolean reports delivery; monitors
// treat a failed publish as retriable on the next scan.
type Publisher interface {
	Publish(ctx context.Context, eventType, subject string, payload any) bool
}

// Monitor scans active outages on a timer and publishes outage.detected for
// every outage that affects at least one in-force policy. Each scan
// re-announces matching outages: durations grow between scans, and the
// evaluator's idempotent claim filing collapses the repeats.
type Monitor struct {
	store     OutageStore
	publisher Publisher
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger

	interval    time.Duration
	radiusMiles float64
	ready       atomic.Bool
}

// NewMonitor creates the outage monitor.
func NewMonitor(store OutageStore, publisher Publisher, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger, interval time.Duration, radiusMiles float64) *Monitor {
	return &Monitor{
		store:       store,
		publisher:   publisher,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
		interval:    interval,
		radiusMiles: radiusMiles,
	}
}

// CheckReadiness returns nil once the monitor has completed a scan.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("outage monitor has not completed a scan yet")
	}
	return nil
}

// Run scans immediately, then on every interval tick until the context is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("outage monitor started", "interval", m.interval, "radius_miles", m.radiusMiles)
	m.metrics.WorkerRunning.WithLabelValues("outage_monitor").Set(1)
	defer m.metrics.WorkerRunning.WithLabelValues("outage_monitor").Set(0)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("outage monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scan over all active outages. A failure on one outage
// is logged and skipped; the rest of the scan proceeds.
func (m *Monitor) RunOnce(ctx context.Context) {
	outages, err := m.store.ActiveOutages(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error("active outage scan failed", "error", err)
		m.metrics.MonitorErrors.Inc()
		return
	}

	now := m.clock.Now().UTC()
	for _, outage := range outages {
		m.metrics.OutagesScanned.Inc()
		if err := m.announce(ctx, outage, now); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("outage announcement failed",
				"outage_event_id", outage.EventID, "error", err)
			m.metrics.MonitorErrors.Inc()
		}
	}
	m.ready.Store(true)
}

// announce matches one outage against the policy book and publishes
// outage.detected when any in-force policy is affected.
func (m *Monitor) announce(ctx context.Context, outage domain.OutageEvent, now time.Time) error {
	policies, err := m.affectedPolicies(ctx, outage, now)
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		return nil
	}
	m.metrics.OutagesMatched.Inc()

	policyIDs := make([]string, len(policies))
	for i, p := range policies {
		policyIDs[i] = p.PolicyID
	}

	payload := domain.OutageDetectedPayload{
		EventID:           outage.EventID,
		UtilityName:       outage.UtilityName,
		Location:          outage.Location,
		AffectedCustomers: outage.AffectedCustomers,
		OutageStart:       outage.OutageStart.UTC().Format(time.RFC3339),
		DurationMinutes:   outage.EffectiveDuration(now),
		Status:            string(outage.Status),
		ReportedCause:     outage.ReportedCause,
		AffectedPolicies:  policyIDs,
		PolicyCount:       len(policyIDs),
	}
	m.publisher.Publish(ctx, domain.EventOutageDetected, domain.OutageSubject(outage.EventID), payload)

	m.logger.Info("outage affects insured locations",
		"outage_event_id", outage.EventID,
		"utility", outage.UtilityName,
		"zip_code", outage.Location.ZipCode,
		"policy_count", len(policyIDs),
		"duration_minutes", payload.DurationMinutes)
	return nil
}

// affectedPolicies unions the zip-code match with the radius match and
// drops policies not currently in force.
func (m *Monitor) affectedPolicies(ctx context.Context, outage domain.OutageEvent, now time.Time) ([]domain.Policy, error) {
	byZip, err := m.store.PoliciesInZip(ctx, outage.Location.ZipCode)
	if err != nil {
		return nil, err
	}
	nearby, err := m.store.PoliciesNear(ctx, outage.Location.Latitude, outage.Location.Longitude, m.radiusMiles)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var policies []domain.Policy
	for _, p := range append(byZip, nearby...) {
		if seen[p.PolicyID] || !p.IsActive(now) {
			continue
		}
		seen[p.PolicyID] = true
		policies = append(policies, p)
	}
	return policies, nil
}
