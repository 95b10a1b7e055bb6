package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

const payoutColumns = `payout_id, claim_id, policy_id, amount, status,
	initiated_at, completed_at, transaction_id, payment_method`

// InsertPayout records a settlement attempt, reporting whether a new row was
// created. The deterministic payout_id makes redeliveries collapse onto the
// existing row.
func (s *Store) InsertPayout(ctx context.Context, p domain.Payout) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (payout_id) DO NOTHING`,
		p.PayoutID, p.ClaimID, p.PolicyID, p.Amount, string(p.Status),
		p.InitiatedAt, nullTime(p.CompletedAt), nullString(p.TransactionID), p.PaymentMethod,
	)
	if err != nil {
		return false, fmt.Errorf("insert payout %s: %w", p.PayoutID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetPayout fetches one payout by ID.
func (s *Store) GetPayout(ctx context.Context, payoutID string) (domain.Payout, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE payout_id = $1`, payoutID)
	p, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payout{}, fmt.Errorf("payout %s: %w", payoutID, ErrNotFound)
	}
	return p, err
}

// UpdatePayout applies a typed partial update. Status changes only match rows
// whose current status permits the forward transition.
func (s *Store) UpdatePayout(ctx context.Context, payoutID string, patch domain.PayoutPatch) (bool, error) {
	var set setBuilder
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if patch.CompletedAt != nil {
		set.add("completed_at", *patch.CompletedAt)
	}
	if patch.TransactionID != nil {
		set.add("transaction_id", *patch.TransactionID)
	}
	if set.empty() {
		return false, nil
	}

	query, args := set.update("payouts", "payout_id", payoutID)
	if patch.Status != nil {
		args = append(args, pq.Array(priorPayoutStatuses(*patch.Status)))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update payout %s: %w", payoutID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func priorPayoutStatuses(next domain.PayoutStatus) []string {
	all := []domain.PayoutStatus{
		domain.PayoutPending, domain.PayoutProcessing,
		domain.PayoutCompleted, domain.PayoutFailed,
	}
	var prior []string
	for _, s := range all {
		if s.CanTransition(next) {
			prior = append(prior, string(s))
		}
	}
	return prior
}

func scanPayout(row interface{ Scan(...any) error }) (domain.Payout, error) {
	var (
		p         domain.Payout
		status    string
		completed sql.NullTime
		txn       sql.NullString
	)
	err := row.Scan(
		&p.PayoutID, &p.ClaimID, &p.PolicyID, &p.Amount, &status,
		&p.InitiatedAt, &completed, &txn, &p.PaymentMethod,
	)
	if err != nil {
		return domain.Payout{}, err
	}
	p.Status = domain.PayoutStatus(status)
	p.TransactionID = txn.String
	if completed.Valid {
		p.CompletedAt = &completed.Time
	}
	return p, nil
}
