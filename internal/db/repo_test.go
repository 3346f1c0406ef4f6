package db

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"surfmaster/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row / Rows ---

type mockRow struct {
	values  []any
	scanErr error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(r.values, dest)
}

// assign copies values into dest pointers; each value must have exactly the
// pointee's type.
func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("mock: column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(r.data[r.idx], dest)
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func strPtr(s string) *string { return &s }

func requireDBError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// --- SpotRepository ---

func spotRow(id int64, name string, level *string, notes []string) []any {
	return []any{id, name, -22.97, -43.18, strPtr("S"), strPtr("N"), level, notes}
}

func TestSpotRepository_FindAll(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSpotRepository(db)
	ctx := context.Background()

	rows := newMockRows([][]any{
		spotRow(1, "Arpoador", strPtr("INTERMEDIATE"), []string{"crowded", "rocks"}),
		spotRow(2, "Prainha", nil, nil),
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	spots, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 2)

	assert.Equal(t, "Arpoador", spots[0].Name)
	assert.Equal(t, types.LevelIntermediate, spots[0].RecommendedLevel)
	assert.Equal(t, types.DirectionS, spots[0].SwellBestDirection)
	assert.Equal(t, []string{"crowded", "rocks"}, spots[0].Notes)

	assert.Empty(t, spots[1].RecommendedLevel)
	assert.NotNil(t, spots[1].Notes)
	assert.True(t, rows.closed)
	db.AssertExpectations(t)
}

func TestSpotRepository_FindAll_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSpotRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(nil), nil)

	spots, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, spots)
	assert.Empty(t, spots)
}

func TestSpotRepository_FindAll_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("query", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Query", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
		_, err := NewSpotRepository(db).FindAll(ctx)
		requireDBError(t, err)
	})

	t.Run("scan", func(t *testing.T) {
		db := new(mockDBTX)
		rows := newMockRows([][]any{spotRow(1, "x", nil, nil)})
		rows.scanErr = errors.New("bad column")
		db.On("Query", ctx, mock.Anything, mock.Anything).Return(rows, nil)
		_, err := NewSpotRepository(db).FindAll(ctx)
		requireDBError(t, err)
	})

	t.Run("iteration", func(t *testing.T) {
		db := new(mockDBTX)
		rows := newMockRows(nil)
		rows.errVal = errors.New("conn reset")
		db.On("Query", ctx, mock.Anything, mock.Anything).Return(rows, nil)
		_, err := NewSpotRepository(db).FindAll(ctx)
		requireDBError(t, err)
	})
}

func TestSpotRepository_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{int64(7)}).
			Return(&mockRow{values: spotRow(7, "Itauna", strPtr("ADVANCED"), []string{"heavy"})})

		spot, err := NewSpotRepository(db).FindByID(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, spot)
		assert.Equal(t, int64(7), spot.ID)
		assert.Equal(t, types.LevelAdvanced, spot.RecommendedLevel)
		db.AssertExpectations(t)
	})

	t.Run("absent is nil without error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

		spot, err := NewSpotRepository(db).FindByID(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, spot)
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: errors.New("timeout")})

		_, err := NewSpotRepository(db).FindByID(ctx, 1)
		requireDBError(t, err)
	})
}

func TestSpotRepository_Create(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSpotRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{values: []any{int64(12)}})
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Twice()

	spot := &types.Spot{Name: "Grumari", RecommendedLevel: types.LevelBeginner, Notes: []string{"a", "b"}}
	require.NoError(t, repo.Create(ctx, spot))
	assert.Equal(t, int64(12), spot.ID)
	db.AssertExpectations(t)
}

func TestSpotRepository_Count(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{values: []any{4}})

	n, err := NewSpotRepository(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// --- ForecastRepository ---

func forecastRow(id, spotID int64, ts time.Time, height *float64, swellDir *string) []any {
	return []any{id, spotID, ts, height, 10, swellDir, types.Float64Ptr(8), strPtr("NE"), (*float64)(nil), 22, "STORMGLASS"}
}

func TestForecastRepository_FindBetween(t *testing.T) {
	db := new(mockDBTX)
	repo := NewForecastRepository(db)
	ctx := context.Background()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	local := time.FixedZone("BRT", -3*3600)

	rows := newMockRows([][]any{
		forecastRow(1, 1, from.In(local), types.Float64Ptr(1.5), strPtr("S")),
		forecastRow(2, 1, from.Add(time.Hour), nil, nil),
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{from, to}).Return(rows, nil)

	samples, err := repo.FindBetween(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, time.UTC, samples[0].Timestamp.Location())
	assert.True(t, from.Equal(samples[0].Timestamp))
	assert.Equal(t, types.DirectionS, samples[0].SwellDirection)
	assert.Equal(t, types.SourceStormglass, samples[0].Source)
	require.NotNil(t, samples[0].SwellHeight)
	assert.InDelta(t, 1.5, *samples[0].SwellHeight, 1e-9)

	assert.Nil(t, samples[1].SwellHeight)
	assert.Empty(t, samples[1].SwellDirection)
	assert.Nil(t, samples[1].TideHeight)
	db.AssertExpectations(t)
}

func TestForecastRepository_FindAfter(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	db.On("Query", ctx, mock.AnythingOfType("string"), []any{int64(3), from}).
		Return(newMockRows([][]any{forecastRow(5, 3, from, nil, nil)}), nil)

	samples, err := NewForecastRepository(db).FindAfter(ctx, 3, from)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int64(3), samples[0].SpotID)
	db.AssertExpectations(t)
}

func TestForecastRepository_QueryError(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	db.On("Query", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := NewForecastRepository(db).FindBetween(ctx, time.Now(), time.Now())
	requireDBError(t, err)
}

func TestForecastRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := []types.ForecastSample{
		{SpotID: 1, Timestamp: ts, SwellHeight: types.Float64Ptr(1), Source: types.SourceStormglass},
		{SpotID: 1, Timestamp: ts.Add(time.Hour), Source: types.SourceStormglass, SwellDirection: types.DirectionS},
	}

	t.Run("writes every sample", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		n, err := NewForecastRepository(db).Upsert(ctx, samples)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		db.AssertNumberOfCalls(t, "Exec", 2)
	})

	t.Run("stops on first failure", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
		db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("deadlock")).Once()

		n, err := NewForecastRepository(db).Upsert(ctx, samples)
		requireDBError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("empty input", func(t *testing.T) {
		db := new(mockDBTX)
		n, err := NewForecastRepository(db).Upsert(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		db.AssertNotCalled(t, "Exec")
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	db := new(mockDBTX)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool { return sql == schemaSQL }), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)
	require.NoError(t, EnsureSchema(ctx, db))
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS forecasts")

	failing := new(mockDBTX)
	failing.On("Exec", ctx, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, errors.New("permission denied"))
	assert.Error(t, EnsureSchema(ctx, failing))
}
