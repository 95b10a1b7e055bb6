package evaluator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parametric-claims/internal/decision"
	"github.com/couchcryptid/parametric-claims/internal/domain"
	"github.com/couchcryptid/parametric-claims/internal/evaluator"
	"github.com/couchcryptid/parametric-claims/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var evalNow = time.Date(2026, time.March, 12, 15, 7, 0, 0, time.UTC)

// decimalComparer lets cmp diff structs carrying decimal amounts.
var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// --- fakes ---

type fakeStore struct {
	outages  map[string]domain.OutageEvent
	policies map[string]domain.Policy
	weather  map[string]domain.WeatherObservation
	claims   map[string]domain.Claim

	outageErr    error
	insertErr    error
	claimCount   int
	inserted     []domain.Claim
	insertedDup  bool
	recentQueued []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		outages:  map[string]domain.OutageEvent{},
		policies: map[string]domain.Policy{},
		weather:  map[string]domain.WeatherObservation{},
		claims:   map[string]domain.Claim{},
	}
}

func (f *fakeStore) GetOutage(_ context.Context, id string) (domain.OutageEvent, error) {
	if f.outageErr != nil {
		return domain.OutageEvent{}, f.outageErr
	}
	o, ok := f.outages[id]
	if !ok {
		return domain.OutageEvent{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) GetPolicy(_ context.Context, id string) (domain.Policy, error) {
	p, ok := f.policies[id]
	if !ok {
		return domain.Policy{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) InsertClaim(_ context.Context, c domain.Claim) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, exists := f.claims[c.ClaimID]; exists {
		f.insertedDup = true
		return false, nil
	}
	f.claims[c.ClaimID] = c
	f.inserted = append(f.inserted, c)
	return true, nil
}

func (f *fakeStore) GetClaim(_ context.Context, id string) (domain.Claim, error) {
	c, ok := f.claims[id]
	if !ok {
		return domain.Claim{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) RecentWeather(_ context.Context, zip string, _ time.Duration, _ time.Time) (domain.WeatherObservation, error) {
	w, ok := f.weather[zip]
	if !ok {
		return domain.WeatherObservation{}, domain.ErrNotFound
	}
	return w, nil
}

func (f *fakeStore) CountRecentClaims(_ context.Context, policyID string, _ time.Time) (int, error) {
	f.recentQueued = append(f.recentQueued, policyID)
	return f.claimCount, nil
}

type fakeFetcher struct {
	events []domain.InboundEvent
	index  int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (domain.InboundEvent, error) {
	if f.index >= len(f.events) {
		<-ctx.Done()
		return domain.InboundEvent{}, ctx.Err()
	}
	ev := f.events[f.index]
	f.index++
	return ev, nil
}

type published struct {
	eventType string
	subject   string
	payload   any
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, eventType, subject string, payload any) bool {
	f.events = append(f.events, published{eventType, subject, payload})
	return true
}

func (f *fakePublisher) byType(eventType string) []published {
	var out []published
	for _, e := range f.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- fixtures ---

func seedOutage(store *fakeStore, durationMin int, cause string) domain.OutageEvent {
	d := durationMin
	o := domain.OutageEvent{
		EventID:           "OUT-A",
		UtilityName:       "Austin Energy",
		Location:          domain.Location{Latitude: 30.2672, Longitude: -97.7431, ZipCode: "78701"},
		AffectedCustomers: 8200,
		OutageStart:       evalNow.Add(-time.Duration(durationMin) * time.Minute),
		DurationMinutes:   &d,
		Status:            domain.OutageActive,
		ReportedCause:     cause,
	}
	store.outages[o.EventID] = o
	return o
}

func seedPolicy(store *fakeStore, id string) domain.Policy {
	p := domain.Policy{
		PolicyID:         id,
		BusinessName:     "Lavaca Street Bakery",
		Location:         domain.Location{ZipCode: "78701"},
		ThresholdMinutes: 120,
		HourlyRate:       decimal.NewFromInt(500),
		MaxPayout:        decimal.NewFromInt(10000),
		Status:           "active",
	}
	store.policies[id] = p
	return p
}

func seedSevereWeather(store *fakeStore) {
	store.weather["78701"] = domain.WeatherObservation{
		Location:           domain.Location{ZipCode: "78701"},
		ObservedAt:         evalNow.Add(-20 * time.Minute),
		WindSpeedMPH:       48,
		WindGustMPH:        62,
		SevereWeatherAlert: true,
		AlertType:          "Severe Thunderstorm Warning",
	}
}

func announcement(t *testing.T, outage domain.OutageEvent, policyIDs ...string) domain.InboundEvent {
	t.Helper()
	data, err := json.Marshal(domain.OutageDetectedPayload{
		EventID:          outage.EventID,
		UtilityName:      outage.UtilityName,
		Location:         outage.Location,
		AffectedPolicies: policyIDs,
		PolicyCount:      len(policyIDs),
	})
	require.NoError(t, err)
	value, err := json.Marshal(domain.Envelope{
		ID:          "evt-1",
		EventType:   domain.EventOutageDetected,
		Subject:     domain.OutageSubject(outage.EventID),
		EventTime:   evalNow,
		DataVersion: domain.EnvelopeVersion,
		Data:        data,
	})
	require.NoError(t, err)
	return domain.InboundEvent{Value: value, Topic: "outage-events"}
}

func newEvaluator(store *fakeStore, pub *fakePublisher) *evaluator.Evaluator {
	engine := decision.NewRuleEngine(discardLogger(),
		decision.DefaultChecks(decision.DefaultFraudConfig())...)
	return evaluator.New(store, &fakeFetcher{}, engine, pub,
		observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(evalNow),
		discardLogger(), 6*time.Hour, 30*24*time.Hour)
}

// --- tests ---

func TestEvaluator_Handle_FilesApprovedClaim(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	seedPolicy(store, "POL-1")
	seedSevereWeather(store)
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))

	require.Len(t, store.inserted, 1)
	claim := store.inserted[0]
	assert.Equal(t, domain.ClaimID("POL-1", "OUT-A"), claim.ClaimID)
	assert.Equal(t, domain.ClaimApproved, claim.Status)
	assert.Equal(t, "837.5", claim.PayoutAmount.String())
	assert.Equal(t, "severe", claim.SeverityAssessment)
	assert.NotNil(t, claim.ApprovedAt)
	assert.Nil(t, claim.DeniedAt)

	exceeded := pub.byType(domain.EventThresholdExceeded)
	require.Len(t, exceeded, 1)
	tp := exceeded[0].payload.(domain.ThresholdExceededPayload)
	assert.Equal(t, 187, tp.DurationMinutes)
	assert.Equal(t, 120, tp.ThresholdMinutes)
	assert.Equal(t, 67, tp.MinutesOverThreshold)

	approved := pub.byType(domain.EventClaimApproved)
	require.Len(t, approved, 1)
	cp := approved[0].payload.(domain.ClaimDecisionPayload)
	assert.Equal(t, claim.ClaimID, cp.ClaimID)
	assert.Equal(t, "approved", cp.Status)
	assert.Equal(t, "837.5", cp.PayoutAmount.String())
}

func TestEvaluator_Handle_FilesDeniedClaim(t *testing.T) {
	// Above threshold but planned maintenance: a denied claim is still filed
	// and its event published.
	store := newFakeStore()
	outage := seedOutage(store, 480, "planned_maintenance")
	seedPolicy(store, "POL-1")
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))

	require.Len(t, store.inserted, 1)
	claim := store.inserted[0]
	assert.Equal(t, domain.ClaimDenied, claim.Status)
	assert.True(t, claim.PayoutAmount.IsZero())
	assert.NotEmpty(t, claim.DenialReason)
	assert.NotNil(t, claim.DeniedAt)

	assert.Len(t, pub.byType(domain.EventClaimDenied), 1)
	assert.Empty(t, pub.byType(domain.EventClaimApproved))
}

func TestEvaluator_Handle_SkipsBelowThreshold(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 90, "storm_damage")
	seedPolicy(store, "POL-1")
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))

	assert.Empty(t, store.inserted, "below threshold files nothing")
	assert.Empty(t, pub.events)
}

func TestEvaluator_Handle_RedeliveryRepublishesCanonicalClaim(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	seedPolicy(store, "POL-1")
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	msg := announcement(t, outage, "POL-1")
	require.NoError(t, e.Handle(context.Background(), msg))

	// Mutate the outage so a fresh evaluation would differ; the redelivery
	// must republish the stored claim, not re-decide.
	longer := 400
	o := store.outages["OUT-A"]
	o.DurationMinutes = &longer
	store.outages["OUT-A"] = o

	require.NoError(t, e.Handle(context.Background(), msg))

	assert.Len(t, store.inserted, 1, "only one claim row ever created")
	assert.True(t, store.insertedDup)

	approved := pub.byType(domain.EventClaimApproved)
	require.Len(t, approved, 2)
	first := approved[0].payload.(domain.ClaimDecisionPayload)
	second := approved[1].payload.(domain.ClaimDecisionPayload)
	if diff := cmp.Diff(first, second, decimalComparer); diff != "" {
		t.Errorf("republished verdict differs from the original (-first +second):\n%s", diff)
	}

	// The trigger event is not repeated for a known claim.
	assert.Len(t, pub.byType(domain.EventThresholdExceeded), 1)
}

func TestEvaluator_Handle_EvaluatesEachPolicyIndependently(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	seedPolicy(store, "POL-1")
	tight := seedPolicy(store, "POL-2")
	tight.ThresholdMinutes = 240
	store.policies["POL-2"] = tight
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	// POL-3 is unknown; it must not abort the others.
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-3", "POL-1", "POL-2")))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "POL-1", store.inserted[0].PolicyID)
}

func TestEvaluator_Handle_SkipsInactivePolicy(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	p := seedPolicy(store, "POL-1")
	p.Status = "cancelled"
	store.policies["POL-1"] = p
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))
	assert.Empty(t, store.inserted)
}

func TestEvaluator_Handle_DecidesWithoutWeather(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "equipment_failure")
	seedPolicy(store, "POL-1")
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "558.33", store.inserted[0].PayoutAmount.StringFixed(2))
	assert.Equal(t, 1.0, store.inserted[0].WeatherFactor)
}

func TestEvaluator_Handle_WeatherLookupUsesOutageLocation(t *testing.T) {
	// A radius-matched policy sits in a neighboring zip; the severity
	// multiplier still comes from conditions at the outage site.
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	p := seedPolicy(store, "POL-1")
	p.Location.ZipCode = "78704"
	store.policies["POL-1"] = p
	seedSevereWeather(store) // observation recorded for 78701, the outage zip
	pub := &fakePublisher{}

	e := newEvaluator(store, pub)
	require.NoError(t, e.Handle(context.Background(), announcement(t, outage, "POL-1")))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "837.5", store.inserted[0].PayoutAmount.String())
	assert.Equal(t, "severe", store.inserted[0].SeverityAssessment)
	assert.Equal(t, 1.5, store.inserted[0].WeatherFactor)
}

func TestEvaluator_Handle_IgnoresOtherEventTypes(t *testing.T) {
	value, err := json.Marshal(domain.Envelope{
		ID:        "evt-2",
		EventType: domain.EventOutageResolved,
		Data:      json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	store := newFakeStore()
	pub := &fakePublisher{}
	e := newEvaluator(store, pub)

	require.NoError(t, e.Handle(context.Background(), domain.InboundEvent{Value: value}))
	assert.Empty(t, store.inserted)
	assert.Empty(t, pub.events)
}

func TestEvaluator_Handle_SkipsMalformedMessage(t *testing.T) {
	store := newFakeStore()
	e := newEvaluator(store, &fakePublisher{})

	// Poison pills are dropped, not returned as errors, so they get
	// committed instead of redelivered forever.
	require.NoError(t, e.Handle(context.Background(), domain.InboundEvent{Value: []byte("not-json{{{")}))
}

func TestEvaluator_Handle_MissingOutageSkips(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	e := newEvaluator(store, pub)

	msg := announcement(t, domain.OutageEvent{EventID: "OUT-GONE"}, "POL-1")
	require.NoError(t, e.Handle(context.Background(), msg))
	assert.Empty(t, pub.events)
}

func TestEvaluator_Handle_TransientStoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	outage := seedOutage(store, 187, "storm_damage")
	store.outageErr = errors.New("connection reset")
	e := newEvaluator(store, &fakePublisher{})

	// Returned errors keep the message uncommitted for redelivery.
	err := e.Handle(context.Background(), announcement(t, outage, "POL-1"))
	assert.Error(t, err)
}
