package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

const claimColumns = `claim_id, policy_id, outage_event_id, status, filed_at,
	validated_at, approved_at, denied_at, denial_reason, payout_amount,
	ai_confidence_score, ai_reasoning, fraud_flags, weather_factor, severity_assessment`

// InsertClaim files a claim, reporting whether a new row was created. The
// deterministic claim_id makes redelivered evaluations collapse onto the
// existing row.
func (s *Store) InsertClaim(ctx context.Context, c domain.Claim) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (claim_id) DO NOTHING`,
		c.ClaimID, c.PolicyID, c.OutageEventID, string(c.Status), c.FiledAt,
		nullTime(c.ValidatedAt), nullTime(c.ApprovedAt), nullTime(c.DeniedAt),
		nullString(c.DenialReason), c.PayoutAmount,
		c.AIConfidenceScore, nullString(c.AIReasoning), pq.Array(c.FraudFlags),
		c.WeatherFactor, nullString(c.SeverityAssessment),
	)
	if err != nil {
		return false, fmt.Errorf("insert claim %s: %w", c.ClaimID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetClaim fetches one claim by ID.
func (s *Store) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE claim_id = $1`, claimID)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Claim{}, fmt.Errorf("claim %s: %w", claimID, ErrNotFound)
	}
	return c, err
}

// UpdateClaim applies a typed partial update. Status changes only match rows
// whose current status permits the forward transition, so a redelivered or
// out-of-order update loses the race harmlessly.
func (s *Store) UpdateClaim(ctx context.Context, claimID string, patch domain.ClaimPatch) (bool, error) {
	var set setBuilder
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if set.empty() {
		return false, nil
	}

	query, args := set.update("claims", "claim_id", claimID)
	if patch.Status != nil {
		args = append(args, pq.Array(priorStatuses(*patch.Status)))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update claim %s: %w", claimID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountRecentClaims counts claims filed against a policy since the given
// instant, the input to frequency-based fraud screening.
func (s *Store) CountRecentClaims(ctx context.Context, policyID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM claims WHERE policy_id = $1 AND filed_at >= $2`,
		policyID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent claims for %s: %w", policyID, err)
	}
	return n, nil
}

// priorStatuses lists the claim statuses from which next is a legal forward
// transition, derived from the domain transition rules.
func priorStatuses(next domain.ClaimStatus) []string {
	all := []domain.ClaimStatus{
		domain.ClaimFiled, domain.ClaimValidating,
		domain.ClaimApproved, domain.ClaimDenied, domain.ClaimPaid,
	}
	var prior []string
	for _, s := range all {
		if s.CanTransition(next) {
			prior = append(prior, string(s))
		}
	}
	return prior
}

func scanClaim(row interface{ Scan(...any) error }) (domain.Claim, error) {
	var (
		c         domain.Claim
		status    string
		validated sql.NullTime
		approved  sql.NullTime
		denied    sql.NullTime
		reason    sql.NullString
		reasoning sql.NullString
		severity  sql.NullString
	)
	err := row.Scan(
		&c.ClaimID, &c.PolicyID, &c.OutageEventID, &status, &c.FiledAt,
		&validated, &approved, &denied, &reason, &c.PayoutAmount,
		&c.AIConfidenceScore, &reasoning, pq.Array(&c.FraudFlags),
		&c.WeatherFactor, &severity,
	)
	if err != nil {
		return domain.Claim{}, err
	}
	c.Status = domain.ClaimStatus(status)
	c.DenialReason = reason.String
	c.AIReasoning = reasoning.String
	c.SeverityAssessment = severity.String
	if validated.Valid {
		c.ValidatedAt = &validated.Time
	}
	if approved.Valid {
		c.ApprovedAt = &approved.Time
	}
	if denied.Valid {
		c.DeniedAt = &denied.Time
	}
	return c, nil
}
