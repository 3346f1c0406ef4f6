package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"surfmaster/internal/types"
)

// ForecastRepository provides data access for the forecasts table.
type ForecastRepository struct {
	db DBTX
}

// NewForecastRepository creates a ForecastRepository backed by the given
// connection.
func NewForecastRepository(db DBTX) *ForecastRepository {
	return &ForecastRepository{db: db}
}

const forecastColumns = `id, spot_id, timestamp, swell_height, swell_period,
	swell_direction, wind_speed, wind_direction, tide_height,
	water_temperature, data_source`

func scanForecast(row pgx.Row) (types.ForecastSample, error) {
	var (
		f                 types.ForecastSample
		swellDir, windDir *string
		source            string
	)
	err := row.Scan(
		&f.ID,
		&f.SpotID,
		&f.Timestamp,
		&f.SwellHeight,
		&f.SwellPeriod,
		&swellDir,
		&f.WindSpeed,
		&windDir,
		&f.TideHeight,
		&f.WaterTemperature,
		&source,
	)
	if err != nil {
		return f, err
	}
	f.Timestamp = f.Timestamp.UTC()
	f.SwellDirection = types.Direction(derefString(swellDir))
	f.WindDirection = types.Direction(derefString(windDir))
	f.Source = types.ForecastSourceName(source)
	return f, nil
}

func (r *ForecastRepository) query(ctx context.Context, op, sql string, args ...any) ([]types.ForecastSample, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to "+op, err)
	}
	defer rows.Close()

	out := []types.ForecastSample{}
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan forecast row", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating forecast rows", err)
	}
	return out, nil
}

// FindBetween returns samples for every spot with from <= timestamp <= to,
// ordered by spot then timestamp.
func (r *ForecastRepository) FindBetween(ctx context.Context, from, to time.Time) ([]types.ForecastSample, error) {
	return r.query(ctx, "list forecasts in range",
		`SELECT `+forecastColumns+`
		 FROM forecasts
		 WHERE timestamp >= $1 AND timestamp <= $2
		 ORDER BY spot_id, timestamp`,
		from, to,
	)
}

// FindAfter returns a spot's samples at or after from, ascending by time.
func (r *ForecastRepository) FindAfter(ctx context.Context, spotID int64, from time.Time) ([]types.ForecastSample, error) {
	return r.query(ctx, "list spot forecasts",
		`SELECT `+forecastColumns+`
		 FROM forecasts
		 WHERE spot_id = $1 AND timestamp >= $2
		 ORDER BY timestamp ASC`,
		spotID, from,
	)
}

// Upsert writes samples, replacing any existing row with the same spot,
// timestamp and source. It returns the number of rows written.
func (r *ForecastRepository) Upsert(ctx context.Context, samples []types.ForecastSample) (int, error) {
	written := 0
	for _, f := range samples {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO forecasts (spot_id, timestamp, swell_height, swell_period,
			 swell_direction, wind_speed, wind_direction, tide_height,
			 water_temperature, data_source)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (spot_id, timestamp, data_source) DO UPDATE SET
			     swell_height = EXCLUDED.swell_height,
			     swell_period = EXCLUDED.swell_period,
			     swell_direction = EXCLUDED.swell_direction,
			     wind_speed = EXCLUDED.wind_speed,
			     wind_direction = EXCLUDED.wind_direction,
			     tide_height = EXCLUDED.tide_height,
			     water_temperature = EXCLUDED.water_temperature`,
			f.SpotID,
			f.Timestamp.UTC(),
			f.SwellHeight,
			f.SwellPeriod,
			nilIfEmpty(string(f.SwellDirection)),
			f.WindSpeed,
			nilIfEmpty(string(f.WindDirection)),
			f.TideHeight,
			f.WaterTemperature,
			string(f.Source),
		)
		if err != nil {
			return written, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert forecast", err).
				WithDetails(map[string]any{"spot_id": f.SpotID, "timestamp": f.Timestamp})
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}
