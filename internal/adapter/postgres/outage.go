package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

const outageColumns = `event_id, utility_name, latitude, longitude, zip_code, city, state,
	affected_customers, outage_start, outage_end, duration_minutes, status,
	reported_cause, data_source, last_updated`

// ActiveOutages returns all outages with status active.
func (s *Store) ActiveOutages(ctx context.Context) ([]domain.OutageEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outageColumns+` FROM outage_events WHERE status = 'active' ORDER BY outage_start`)
	if err != nil {
		return nil, fmt.Errorf("query active outages: %w", err)
	}
	defer rows.Close()

	var outages []domain.OutageEvent
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, err
		}
		outages = append(outages, o)
	}
	return outages, rows.Err()
}

// GetOutage fetches one outage by its feed-assigned event ID.
func (s *Store) GetOutage(ctx context.Context, eventID string) (domain.OutageEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outageColumns+` FROM outage_events WHERE event_id = $1`, eventID)
	o, err := scanOutage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutageEvent{}, fmt.Errorf("outage %s: %w", eventID, ErrNotFound)
	}
	return o, err
}

// InsertOutage creates an outage row if absent. Used by the seed tool; the
// production feed writes outages directly.
func (s *Store) InsertOutage(ctx context.Context, o domain.OutageEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outage_events (`+outageColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (event_id) DO NOTHING`,
		o.EventID, o.UtilityName, o.Location.Latitude, o.Location.Longitude,
		o.Location.ZipCode, nullString(o.Location.City), nullString(o.Location.State),
		o.AffectedCustomers, o.OutageStart, nullTime(o.OutageEnd), nullInt(o.DurationMinutes),
		string(o.Status), nullString(o.ReportedCause), nullString(o.DataSource), nullTime(o.LastUpdated),
	)
	if err != nil {
		return false, fmt.Errorf("insert outage %s: %w", o.EventID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateOutage applies a typed partial update. When the patch moves the
// outage to resolved, the update only matches rows still active, making the
// resolution monitor's write idempotent under overlapping timer ticks.
func (s *Store) UpdateOutage(ctx context.Context, eventID string, patch domain.OutagePatch) (bool, error) {
	var set setBuilder
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if patch.OutageEnd != nil {
		set.add("outage_end", *patch.OutageEnd)
	}
	if patch.DurationMinutes != nil {
		set.add("duration_minutes", *patch.DurationMinutes)
	}
	if patch.LastUpdated != nil {
		set.add("last_updated", *patch.LastUpdated)
	}
	if set.empty() {
		return false, nil
	}

	query, args := set.update("outage_events", "event_id", eventID)
	if patch.Status != nil && *patch.Status == domain.OutageResolved {
		query += ` AND status = 'active'`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update outage %s: %w", eventID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanOutage(row interface{ Scan(...any) error }) (domain.OutageEvent, error) {
	var (
		o          domain.OutageEvent
		city       sql.NullString
		state      sql.NullString
		outageEnd  sql.NullTime
		duration   sql.NullInt64
		cause      sql.NullString
		dataSource sql.NullString
		updated    sql.NullTime
		status     string
	)
	err := row.Scan(
		&o.EventID, &o.UtilityName, &o.Location.Latitude, &o.Location.Longitude,
		&o.Location.ZipCode, &city, &state,
		&o.AffectedCustomers, &o.OutageStart, &outageEnd, &duration, &status,
		&cause, &dataSource, &updated,
	)
	if err != nil {
		return domain.OutageEvent{}, err
	}
	o.Location.City = city.String
	o.Location.State = state.String
	o.Status = domain.OutageStatus(status)
	o.ReportedCause = cause.String
	o.DataSource = dataSource.String
	if outageEnd.Valid {
		o.OutageEnd = &outageEnd.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		o.DurationMinutes = &d
	}
	if updated.Valid {
		o.LastUpdated = &updated.Time
	}
	return o, nil
}
