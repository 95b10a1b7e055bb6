package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

const policyColumns = `policy_id, business_name, latitude, longitude, zip_code, address, city, state,
	outage_threshold_minutes, hourly_rate, max_payout, status,
	effective_date, expiration_date, contact_email`

// PoliciesInZip returns active policies registered in the given zip code.
func (s *Store) PoliciesInZip(ctx context.Context, zip string) ([]domain.Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE zip_code = $1 AND status = 'active'`, zip)
	if err != nil {
		return nil, fmt.Errorf("query policies in zip %s: %w", zip, err)
	}
	defer rows.Close()
	return collectPolicies(rows)
}

// PoliciesNear returns active policies whose location lies within radiusMiles
// of the given point, using great-circle distance computed in SQL.
func (s *Store) PoliciesNear(ctx context.Context, lat, lon, radiusMiles float64) ([]domain.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE status = 'active'
		  AND 3959 * acos(least(1.0,
		        cos(radians($1)) * cos(radians(latitude)) * cos(radians(longitude) - radians($2))
		      + sin(radians($1)) * sin(radians(latitude)))) <= $3`,
		lat, lon, radiusMiles)
	if err != nil {
		return nil, fmt.Errorf("query policies near (%f, %f): %w", lat, lon, err)
	}
	defer rows.Close()
	return collectPolicies(rows)
}

// GetPolicy fetches one policy by ID regardless of status.
func (s *Store) GetPolicy(ctx context.Context, policyID string) (domain.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE policy_id = $1`, policyID)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Policy{}, fmt.Errorf("policy %s: %w", policyID, ErrNotFound)
	}
	return p, err
}

// InsertPolicy creates a policy row if absent. Used by the seed tool.
func (s *Store) InsertPolicy(ctx context.Context, p domain.Policy) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (policy_id) DO NOTHING`,
		p.PolicyID, p.BusinessName, p.Location.Latitude, p.Location.Longitude,
		p.Location.ZipCode, nullString(p.Location.Address), nullString(p.Location.City),
		nullString(p.Location.State), p.ThresholdMinutes, p.HourlyRate, p.MaxPayout,
		p.Status, nullTime(p.EffectiveDate), nullTime(p.ExpirationDate), nullString(p.ContactEmail),
	)
	if err != nil {
		return false, fmt.Errorf("insert policy %s: %w", p.PolicyID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func collectPolicies(rows *sql.Rows) ([]domain.Policy, error) {
	var policies []domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func scanPolicy(row interface{ Scan(...any) error }) (domain.Policy, error) {
	var (
		p          domain.Policy
		address    sql.NullString
		city       sql.NullString
		state      sql.NullString
		effective  sql.NullTime
		expiration sql.NullTime
		email      sql.NullString
	)
	err := row.Scan(
		&p.PolicyID, &p.BusinessName, &p.Location.Latitude, &p.Location.Longitude,
		&p.Location.ZipCode, &address, &city, &state,
		&p.ThresholdMinutes, &p.HourlyRate, &p.MaxPayout, &p.Status,
		&effective, &expiration, &email,
	)
	if err != nil {
		return domain.Policy{}, err
	}
	p.Location.Address = address.String
	p.Location.City = city.String
	p.Location.State = state.String
	p.ContactEmail = email.String
	if effective.Valid {
		p.EffectiveDate = &effective.Time
	}
	if expiration.Valid {
		p.ExpirationDate = &expiration.Time
	}
	return p, nil
}
