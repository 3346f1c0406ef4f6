package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"surfmaster/internal/types"
)

// SpotRepository provides read access to the spots and spot_notes tables.
type SpotRepository struct {
	db DBTX
}

// NewSpotRepository creates a SpotRepository backed by the given connection.
func NewSpotRepository(db DBTX) *SpotRepository {
	return &SpotRepository{db: db}
}

// spotSelect aggregates notes in insertion order so that one row maps to one
// spot. The column order must match scanSpot.
const spotSelect = `SELECT s.id, s.name, s.latitude, s.longitude,
	s.swell_best_direction, s.wind_best_direction, s.recommended_level,
	COALESCE(array_agg(n.note ORDER BY n.position) FILTER (WHERE n.note IS NOT NULL), '{}')
	FROM spots s
	LEFT JOIN spot_notes n ON n.spot_id = s.id`

func scanSpot(row pgx.Row) (*types.Spot, error) {
	var (
		s                  types.Spot
		swell, wind, level *string
	)
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Latitude,
		&s.Longitude,
		&swell,
		&wind,
		&level,
		&s.Notes,
	); err != nil {
		return nil, err
	}
	s.SwellBestDirection = types.Direction(derefString(swell))
	s.WindBestDirection = types.Direction(derefString(wind))
	s.RecommendedLevel = types.UserLevel(derefString(level))
	if s.Notes == nil {
		s.Notes = []string{}
	}
	return &s, nil
}

// FindAll returns every spot ordered by id.
func (r *SpotRepository) FindAll(ctx context.Context) ([]types.Spot, error) {
	rows, err := r.db.Query(ctx, spotSelect+` GROUP BY s.id ORDER BY s.id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list spots", err)
	}
	defer rows.Close()

	spots := []types.Spot{}
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan spot row", err)
		}
		spots = append(spots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating spot rows", err)
	}
	return spots, nil
}

// FindByID returns the spot with the given id, or nil, nil when it does not
// exist.
func (r *SpotRepository) FindByID(ctx context.Context, id int64) (*types.Spot, error) {
	row := r.db.QueryRow(ctx, spotSelect+` WHERE s.id = $1 GROUP BY s.id`, id)
	s, err := scanSpot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve spot", err)
	}
	return s, nil
}

// Create inserts a spot and its notes, setting spot.ID from the database.
// Used by the seed command; the API never writes spots.
func (r *SpotRepository) Create(ctx context.Context, spot *types.Spot) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO spots (name, latitude, longitude, swell_best_direction, wind_best_direction, recommended_level)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		spot.Name,
		spot.Latitude,
		spot.Longitude,
		nilIfEmpty(string(spot.SwellBestDirection)),
		nilIfEmpty(string(spot.WindBestDirection)),
		nilIfEmpty(string(spot.RecommendedLevel)),
	).Scan(&spot.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create spot", err)
	}

	for i, note := range spot.Notes {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO spot_notes (spot_id, position, note) VALUES ($1, $2, $3)`,
			spot.ID, i, note,
		); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to create spot note", err)
		}
	}
	return nil
}

// Count returns the number of spots.
func (r *SpotRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM spots`).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count spots", err)
	}
	return n, nil
}
