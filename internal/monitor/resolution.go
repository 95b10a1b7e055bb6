package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

// ResolutionStore is the slice of the ledger the resolution monitor uses.
type ResolutionStore interface {
	ActiveOutages(ctx context.Context) ([]domain.OutageEvent, error)
	UpdateOutage(ctx context.Context, eventID string, patch domain.OutagePatch) (bool, error)
}

// Resolution closes out outages the feed has left active past the cutoff.
// The conditional status update makes the close idempotent: when two ticks
// overlap, only the one whose update matched publishes outage.resolved.
type Resolution struct {
	store     ResolutionStore
	publisher Publisher
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger

	interval time.Duration
	after    time.Duration
}

// NewResolution creates the resolution monitor. Outages still active after
// the given duration are treated as resolved with an end time of now.
func NewResolution(store ResolutionStore, publisher Publisher, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger, interval, after time.Duration) *Resolution {
	return &Resolution{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
		interval:  interval,
		after:     after,
	}
}

// Run sweeps immediately, then on every interval tick until the context is
// cancelled.
func (r *Resolution) Run(ctx context.Context) error {
	r.logger.Info("resolution monitor started", "interval", r.interval, "resolve_after", r.after)
	r.metrics.WorkerRunning.WithLabelValues("resolution_monitor").Set(1)
	defer r.metrics.WorkerRunning.WithLabelValues("resolution_monitor").Set(0)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolution monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. A failure on one outage is logged and skipped.
func (r *Resolution) RunOnce(ctx context.Context) {
	outages, err := r.store.ActiveOutages(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("active outage sweep failed", "error", err)
		r.metrics.MonitorErrors.Inc()
		return
	}

	now := r.clock.Now().UTC()
	for _, outage := range outages {
		if now.Sub(outage.OutageStart) < r.after {
			continue
		}
		if err := r.resolve(ctx, outage, now); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("outage resolution failed",
				"outage_event_id", outage.EventID, "error", err)
			r.metrics.MonitorErrors.Inc()
		}
	}
}

// resolve marks one outage resolved and, when this sweep won the update,
// publishes outage.resolved.
func (r *Resolution) resolve(ctx context.Context, outage domain.OutageEvent, now time.Time) error {
	duration := int(now.Sub(outage.OutageStart) / time.Minute)
	resolved := domain.OutageResolved

	updated, err := r.store.UpdateOutage(ctx, outage.EventID, domain.OutagePatch{
		Status:          &resolved,
		OutageEnd:       &now,
		DurationMinutes: &duration,
		LastUpdated:     &now,
	})
	if err != nil {
		return err
	}
	if !updated {
		// Another sweep or the feed itself resolved it first.
		return nil
	}
	r.metrics.OutagesResolved.Inc()

	payload := domain.OutageResolvedPayload{
		EventID:         outage.EventID,
		UtilityName:     outage.UtilityName,
		Location:        outage.Location,
		OutageStart:     outage.OutageStart.UTC().Format(time.RFC3339),
		OutageEnd:       now.Format(time.RFC3339),
		DurationMinutes: duration,
	}
	r.publisher.Publish(ctx, domain.EventOutageResolved, domain.OutageSubject(outage.EventID), payload)

	r.logger.Info("stale outage resolved",
		"outage_event_id", outage.EventID,
		"duration_minutes", duration)
	return nil
}
