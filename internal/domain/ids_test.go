package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

func TestClaimID_Deterministic(t *testing.T) {
	a := domain.ClaimID("POL-0001", "OUT-AUSTIN-20260312")
	b := domain.ClaimID("POL-0001", "OUT-AUSTIN-20260312")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^CLM-[0-9a-f]{16}$`, a)
}

func TestClaimID_DistinctPairs(t *testing.T) {
	base := domain.ClaimID("POL-0001", "OUT-A")
	assert.NotEqual(t, base, domain.ClaimID("POL-0002", "OUT-A"))
	assert.NotEqual(t, base, domain.ClaimID("POL-0001", "OUT-B"))

	// The separator keeps ambiguous concatenations apart.
	assert.NotEqual(t, domain.ClaimID("POL-1", "2OUT"), domain.ClaimID("POL-12", "OUT"))
}

func TestPayoutID_Deterministic(t *testing.T) {
	claimID := domain.ClaimID("POL-0001", "OUT-A")
	a := domain.PayoutID(claimID)
	b := domain.PayoutID(claimID)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^PAY-[0-9a-f]{16}$`, a)
}

func TestOutageEventID(t *testing.T) {
	start := time.Date(2026, time.March, 12, 14, 30, 0, 0, time.UTC)
	id := domain.OutageEventID("Austin Energy", start)
	assert.Equal(t, "OUT-AUSTINENER-20260312143000", id)
}
