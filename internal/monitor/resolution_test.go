package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/monitor"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

func newResolution(store *fakeStore, pub *fakePublisher, clock clockwork.Clock) *monitor.Resolution {
	return monitor.NewResolution(store, pub, observability.NewMetricsForTesting(),
		clock, discardLogger(), 10*time.Minute, 8*time.Hour)
}

func TestResolution_RunOnce_ResolvesStaleOutage(t *testing.T) {
	stale := activeOutage("OUT-A", "78701", monitorNow.Add(-9*time.Hour))
	store := &fakeStore{outages: []domain.OutageEvent{stale}, updateOK: true}
	pub := &fakePublisher{}

	r := newResolution(store, pub, clockwork.NewFakeClockAt(monitorNow))
	r.RunOnce(context.Background())

	require.Len(t, store.updates, 1)
	assert.Equal(t, []string{"OUT-A"}, store.updateIDs)
	patch := store.updates[0]
	require.NotNil(t, patch.Status)
	assert.Equal(t, domain.OutageResolved, *patch.Status)
	require.NotNil(t, patch.OutageEnd)
	assert.Equal(t, monitorNow, *patch.OutageEnd)
	require.NotNil(t, patch.DurationMinutes)
	assert.Equal(t, 540, *patch.DurationMinutes)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventOutageResolved, pub.events[0].eventType)
	payload := pub.events[0].payload.(domain.OutageResolvedPayload)
	assert.Equal(t, "OUT-A", payload.EventID)
	assert.Equal(t, 540, payload.DurationMinutes)
}

func TestResolution_RunOnce_LeavesFreshOutages(t *testing.T) {
	fresh := activeOutage("OUT-A", "78701", monitorNow.Add(-2*time.Hour))
	store := &fakeStore{outages: []domain.OutageEvent{fresh}, updateOK: true}
	pub := &fakePublisher{}

	r := newResolution(store, pub, clockwork.NewFakeClockAt(monitorNow))
	r.RunOnce(context.Background())

	assert.Empty(t, store.updates)
	assert.Empty(t, pub.events)
}

func TestResolution_RunOnce_LostUpdateRaceStaysSilent(t *testing.T) {
	// updateOK false means the guarded UPDATE matched nothing: the outage was
	// already resolved by the feed or a concurrent sweep. No event.
	stale := activeOutage("OUT-A", "78701", monitorNow.Add(-9*time.Hour))
	store := &fakeStore{outages: []domain.OutageEvent{stale}, updateOK: false}
	pub := &fakePublisher{}

	r := newResolution(store, pub, clockwork.NewFakeClockAt(monitorNow))
	r.RunOnce(context.Background())

	assert.Len(t, store.updates, 1)
	assert.Empty(t, pub.events)
}

func TestResolution_Run_SweepsOnTick(t *testing.T) {
	stale := activeOutage("OUT-A", "78701", monitorNow.Add(-9*time.Hour))
	store := &fakeStore{outages: []domain.OutageEvent{stale}, updateOK: true}
	pub := &fakePublisher{}
	clock := clockwork.NewFakeClockAt(monitorNow)

	r := newResolution(store, pub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, 5*time.Millisecond)

	clock.BlockUntilContext(ctx, 1)
	clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return pub.count() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
