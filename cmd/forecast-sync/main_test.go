package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfmaster/internal/forecasts"
	"surfmaster/internal/types"
)

type mockSyncer struct {
	requests []types.SyncRequestMessage
	results  map[string]*forecasts.SyncResult
	errs     map[string]error
}

func (m *mockSyncer) Sync(_ context.Context, req types.SyncRequestMessage) (*forecasts.SyncResult, error) {
	m.requests = append(m.requests, req)
	if err := m.errs[req.RequestID]; err != nil {
		return nil, err
	}
	if res := m.results[req.RequestID]; res != nil {
		return res, nil
	}
	return &forecasts.SyncResult{RequestID: req.RequestID, FailedSpotIDs: []int64{}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandle_AllSucceed(t *testing.T) {
	syncer := &mockSyncer{}
	h := newHandler(syncer, discardLogger())

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"request_id":"r1","spot_ids":[1,2],"force":true}`},
		{MessageId: "m2", Body: `{"request_id":"r2"}`},
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, syncer.requests, 2)
	assert.Equal(t, []int64{1, 2}, syncer.requests[0].SpotIDs)
	assert.True(t, syncer.requests[0].Force)
	assert.Empty(t, syncer.requests[1].SpotIDs)
}

func TestHandle_CatalogFailureIsRetried(t *testing.T) {
	syncer := &mockSyncer{errs: map[string]error{"r2": errors.New("db down")}}
	h := newHandler(syncer, discardLogger())

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"request_id":"r1"}`},
		{MessageId: "m2", Body: `{"request_id":"r2"}`},
	}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_PerSpotFailuresAreAcked(t *testing.T) {
	syncer := &mockSyncer{results: map[string]*forecasts.SyncResult{
		"r1": {RequestID: "r1", RefreshedSpots: 1, FailedSpotIDs: []int64{4}},
	}}
	h := newHandler(syncer, discardLogger())

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"request_id":"r1"}`},
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestHandle_MalformedBodyIsDropped(t *testing.T) {
	syncer := &mockSyncer{}
	h := newHandler(syncer, discardLogger())

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `not json`},
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, syncer.requests)
}

func TestParseSpotIDs(t *testing.T) {
	tests := []struct {
		raw     string
		want    []int64
		wantErr bool
	}{
		{raw: "", want: nil},
		{raw: "  ", want: nil},
		{raw: "1,2,3", want: []int64{1, 2, 3}},
		{raw: " 4 , ,5", want: []int64{4, 5}},
		{raw: "1,x", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSpotIDs(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/surfmaster")
	t.Setenv("STORMGLASS_API_KEY", "sg-key")
	t.Setenv("FORECAST_REFRESH_TTL", "30m")
	t.Setenv("STORMGLASS_SOURCE", "sg")

	cfg, err := loadWorkerConfig()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "sg", cfg.Forecast.Source)
	assert.Equal(t, 24, cfg.Forecast.HorizonHours)
	assert.Equal(t, "30m0s", cfg.Forecast.RefreshTTL.String())
	assert.Equal(t, "sg-key", cfg.Forecast.StormglassAPIKey.Unmask())
}

func TestLoadWorkerConfig_MissingStormglassKey(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/surfmaster")
	t.Setenv("STORMGLASS_API_KEY", "")

	_, err := loadWorkerConfig()
	assert.ErrorContains(t, err, "STORMGLASS_API_KEY")
}

func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")
	assert.False(t, isLambdaEnvironment())

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	assert.True(t, isLambdaEnvironment())
}
