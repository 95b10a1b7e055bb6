package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/parametric-claims/internal/domain"
)

const weatherColumns = `latitude, longitude, zip_code, observed_at, temperature_f,
	wind_speed_mph, wind_gust_mph, conditions, severe_weather_alert, alert_type`

// RecentWeather returns the latest observation for a zip code within the
// lookback window ending at now, or ErrNotFound when nothing qualifies.
func (s *Store) RecentWeather(ctx context.Context, zip string, lookback time.Duration, now time.Time) (domain.WeatherObservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+weatherColumns+` FROM weather_observations
		WHERE zip_code = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`,
		zip, now.Add(-lookback), now)
	w, err := scanWeather(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WeatherObservation{}, fmt.Errorf("weather for zip %s: %w", zip, ErrNotFound)
	}
	return w, err
}

// InsertWeather appends an observation. Observations are write-once; there is
// no natural key, so every call creates a row.
func (s *Store) InsertWeather(ctx context.Context, w domain.WeatherObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_observations (`+weatherColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		w.Location.Latitude, w.Location.Longitude, w.Location.ZipCode, w.ObservedAt,
		w.TemperatureF, w.WindSpeedMPH, w.WindGustMPH,
		nullString(w.Conditions), w.SevereWeatherAlert, nullString(w.AlertType),
	)
	if err != nil {
		return fmt.Errorf("insert weather observation: %w", err)
	}
	return nil
}

func scanWeather(row interface{ Scan(...any) error }) (domain.WeatherObservation, error) {
	var (
		w          domain.WeatherObservation
		conditions sql.NullString
		alertType  sql.NullString
	)
	err := row.Scan(
		&w.Location.Latitude, &w.Location.Longitude, &w.Location.ZipCode, &w.ObservedAt,
		&w.TemperatureF, &w.WindSpeedMPH, &w.WindGustMPH,
		&conditions, &w.SevereWeatherAlert, &alertType,
	)
	if err != nil {
		return domain.WeatherObservation{}, err
	}
	w.Conditions = conditions.String
	w.AlertType = alertType.String
	return w, nil
}
