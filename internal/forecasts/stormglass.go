// Package forecasts refreshes stored forecast samples from an upstream
// weather provider.
//
// A Provider turns a spot and a time range into hourly samples. The Syncer
// fans out over the catalog, skips spots refreshed within the freshness
// window, and upserts whatever the provider returned. Individual spot
// failures are logged and counted; they never abort the run.
package forecasts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"surfmaster/internal/external"
	"surfmaster/internal/types"
)

// Stormglass defaults.
const (
	DefaultStormglassBaseURL  = "https://api.stormglass.io/v2"
	DefaultStormglassEndpoint = "/weather/point"
	DefaultStormglassSource   = "noaa"
	DefaultHorizonHours       = 24
)

// DefaultStormglassParams are the hourly series requested per spot.
var DefaultStormglassParams = []string{
	"swellHeight",
	"swellDirection",
	"swellPeriod",
	"windSpeed",
	"windDirection",
	"waterTemperature",
}

// StormglassConfig configures a StormglassProvider.
type StormglassConfig struct {
	APIKey       types.SecretString
	BaseURL      string
	Endpoint     string
	Source       string // preferred data source within each series
	HorizonHours int
	Params       []string
	Logger       *slog.Logger
}

// StormglassProvider fetches hourly marine forecasts from the Stormglass
// point API.
type StormglassProvider struct {
	base   *external.BaseClient
	cfg    StormglassConfig
	logger *slog.Logger
}

// NewStormglassProvider applies defaults to cfg and returns a provider that
// sends requests through base.
func NewStormglassProvider(base *external.BaseClient, cfg StormglassConfig) *StormglassProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStormglassBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultStormglassEndpoint
	}
	if cfg.HorizonHours <= 0 {
		cfg.HorizonHours = DefaultHorizonHours
	}
	if len(cfg.Params) == 0 {
		cfg.Params = DefaultStormglassParams
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StormglassProvider{base: base, cfg: cfg, logger: logger}
}

// Source identifies the provider on stored samples.
func (p *StormglassProvider) Source() types.ForecastSourceName { return types.SourceStormglass }

// Supports reports whether spot has usable coordinates.
func (p *StormglassProvider) Supports(spot types.Spot) bool {
	if spot.Latitude == 0 && spot.Longitude == 0 {
		return false
	}
	return spot.Latitude >= -90 && spot.Latitude <= 90 && spot.Longitude >= -180 && spot.Longitude <= 180
}

// Horizon is the default look-ahead used when no end time is given.
func (p *StormglassProvider) Horizon() time.Duration {
	return time.Duration(p.cfg.HorizonHours) * time.Hour
}

type stormglassResponse struct {
	Hours []stormglassHour `json:"hours"`
}

// series maps a data source name ("noaa", "sg", ...) to its value.
type series map[string]*float64

type stormglassHour struct {
	Time             *time.Time `json:"time"`
	SwellHeight      series     `json:"swellHeight"`
	SwellDirection   series     `json:"swellDirection"`
	SwellPeriod      series     `json:"swellPeriod"`
	WindSpeed        series     `json:"windSpeed"`
	WindDirection    series     `json:"windDirection"`
	TideHeight       series     `json:"tideHeight"`
	WaterTemperature series     `json:"waterTemperature"`
}

// Fetch returns samples for spot between from and to, sorted by time. A zero
// to means from plus the configured horizon; a to before from is clamped to
// from. Unsupported spots yield no samples.
func (p *StormglassProvider) Fetch(ctx context.Context, spot types.Spot, from, to time.Time) ([]types.ForecastSample, error) {
	if !p.Supports(spot) {
		return nil, nil
	}
	if !p.cfg.APIKey.IsSet() {
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast, "stormglass API key is not configured", nil)
	}

	from = from.UTC()
	switch {
	case to.IsZero():
		to = from.Add(p.Horizon())
	case to.Before(from):
		to = from
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(spot.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(spot.Longitude, 'f', -1, 64))
	q.Set("params", strings.Join(p.cfg.Params, ","))
	q.Set("start", strconv.FormatInt(from.Unix(), 10))
	q.Set("end", strconv.FormatInt(to.Unix(), 10))
	if p.cfg.Source != "" {
		q.Set("source", p.cfg.Source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+p.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("stormglass: build request: %w", err)
	}
	req.Header.Set("Authorization", strings.TrimSpace(p.cfg.APIKey.Unmask()))
	req.Header.Set("Accept", "application/json")

	resp, err := p.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stormglass: fetch spot %d: %w", spot.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := external.ReadErrorBody(resp)
		p.logger.WarnContext(ctx, "Stormglass API error",
			"status", resp.StatusCode,
			"spot", spot.Name,
			"body", body,
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamForecast,
			fmt.Sprintf("stormglass returned status %d", resp.StatusCode), nil)
	}

	var payload stormglassResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("stormglass: decode response: %w", err)
	}

	samples := make([]types.ForecastSample, 0, len(payload.Hours))
	for _, h := range payload.Hours {
		if s, ok := p.toSample(spot.ID, h); ok {
			samples = append(samples, s)
		}
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

func (p *StormglassProvider) toSample(spotID int64, h stormglassHour) (types.ForecastSample, bool) {
	if h.Time == nil {
		return types.ForecastSample{}, false
	}
	s := types.ForecastSample{
		SpotID:         spotID,
		Timestamp:      h.Time.UTC(),
		SwellHeight:    p.resolve(h.SwellHeight),
		SwellDirection: DegreesToDirection(p.resolve(h.SwellDirection)),
		WindSpeed:      p.resolve(h.WindSpeed),
		WindDirection:  DegreesToDirection(p.resolve(h.WindDirection)),
		TideHeight:     p.resolve(h.TideHeight),
		Source:         types.SourceStormglass,
	}
	if v := p.resolve(h.SwellPeriod); v != nil {
		s.SwellPeriod = int(*v)
	}
	if v := p.resolve(h.WaterTemperature); v != nil {
		s.WaterTemperature = int(math.Round(*v))
	}
	return s, true
}

// resolve picks the preferred source's value, falling back to the first
// non-nil value by source name.
func (p *StormglassProvider) resolve(values series) *float64 {
	if len(values) == 0 {
		return nil
	}
	if p.cfg.Source != "" {
		if v := values[p.cfg.Source]; v != nil {
			return v
		}
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := values[name]; v != nil {
			return v
		}
	}
	return nil
}

// DegreesToDirection maps a bearing in degrees to the nearest of the eight
// compass points. Nil maps to the empty direction.
func DegreesToDirection(deg *float64) types.Direction {
	if deg == nil {
		return ""
	}
	n := len(types.CompassDirections)
	normalized := math.Mod(math.Mod(*deg, 360)+360, 360)
	idx := int(math.Round(normalized/45.0)) % n
	return types.CompassDirections[idx]
}
