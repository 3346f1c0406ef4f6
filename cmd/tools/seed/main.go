// Package main implements the seed CLI, which loads a small development
// catalog (two Portuguese breaks and a few hours of forecasts) into an empty
// database.
//
// Usage:
//
//	go run ./cmd/tools/seed
//	go run ./cmd/tools/seed --dry-run
//	go run ./cmd/tools/seed --migrate
//
// The tool reads DATABASE_URL from the environment (or .env via godotenv).
// It does nothing when the catalog already holds spots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"surfmaster/internal/config"
	"surfmaster/internal/db"
	"surfmaster/internal/types"
)

// SpotWriter is the catalog side of the seed.
type SpotWriter interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, spot *types.Spot) error
}

// SampleWriter stores seed forecasts.
type SampleWriter interface {
	Upsert(ctx context.Context, samples []types.ForecastSample) (int, error)
}

// seedSpot pairs a spot with its sample forecasts.
type seedSpot struct {
	Spot    types.Spot             `json:"spot"`
	Samples []types.ForecastSample `json:"forecasts"`
}

// dataset returns the development catalog anchored at hour. Sample SpotIDs
// are filled in after the spots are created.
func dataset(hour time.Time) []seedSpot {
	at := func(h int) time.Time { return hour.Add(time.Duration(h) * time.Hour) }
	f := types.Float64Ptr

	return []seedSpot{
		{
			Spot: types.Spot{
				Name:               "Ericeira - Ribeira d'Ilhas",
				Latitude:           38.9931,
				Longitude:          -9.4146,
				SwellBestDirection: types.DirectionNW,
				WindBestDirection:  types.DirectionE,
				RecommendedLevel:   types.LevelIntermediate,
				Notes:              []string{"Long right-hander", "Works best on mid tide"},
			},
			Samples: []types.ForecastSample{
				{Timestamp: at(1), SwellHeight: f(1.4), SwellPeriod: 11, SwellDirection: types.DirectionNW, WindSpeed: f(6), WindDirection: types.DirectionE, TideHeight: f(1.2), WaterTemperature: 17},
				{Timestamp: at(3), SwellHeight: f(1.6), SwellPeriod: 12, SwellDirection: types.DirectionNW, WindSpeed: f(5), WindDirection: types.DirectionE, TideHeight: f(1.0), WaterTemperature: 17},
			},
		},
		{
			Spot: types.Spot{
				Name:               "Carcavelos",
				Latitude:           38.6789,
				Longitude:          -9.3210,
				SwellBestDirection: types.DirectionW,
				WindBestDirection:  types.DirectionE,
				RecommendedLevel:   types.LevelBeginner,
				Notes:              []string{"Beach break", "Best with an easterly offshore"},
			},
			Samples: []types.ForecastSample{
				{Timestamp: at(1), SwellHeight: f(1.2), SwellPeriod: 10, SwellDirection: types.DirectionW, WindSpeed: f(8), WindDirection: types.DirectionE, TideHeight: f(1.1), WaterTemperature: 18},
			},
		},
	}
}

// seedResult reports what a seed run wrote.
type seedResult struct {
	Skipped   bool `json:"skipped"`
	Spots     int  `json:"spots"`
	Forecasts int  `json:"forecasts"`
}

// seed writes the dataset unless the catalog is already populated.
func seed(ctx context.Context, spots SpotWriter, samples SampleWriter, now time.Time) (seedResult, error) {
	n, err := spots.Count(ctx)
	if err != nil {
		return seedResult{}, err
	}
	if n > 0 {
		return seedResult{Skipped: true}, nil
	}

	var res seedResult
	for _, entry := range dataset(now.UTC().Truncate(time.Hour)) {
		spot := entry.Spot
		if err := spots.Create(ctx, &spot); err != nil {
			return res, fmt.Errorf("creating %s: %w", spot.Name, err)
		}
		res.Spots++

		batch := make([]types.ForecastSample, len(entry.Samples))
		for i, s := range entry.Samples {
			s.SpotID = spot.ID
			s.Source = types.SourceSeed
			batch[i] = s
		}
		written, err := samples.Upsert(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("writing forecasts for %s: %w", spot.Name, err)
		}
		res.Forecasts += written
	}
	return res, nil
}

func main() {
	dryRunFlag := flag.Bool("dry-run", false, "Print the dataset as JSON without writing")
	migrateFlag := flag.Bool("migrate", false, "Apply the schema before seeding")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: seed [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Load the development spot catalog into an empty database.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dryRunFlag {
		out, _ := json.MarshalIndent(dataset(time.Now().UTC().Truncate(time.Hour)), "", "  ")
		fmt.Println(string(out))
		return
	}

	if err := run(logger, *migrateFlag); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, migrate bool) error {
	_ = godotenv.Load()

	var cfg config.DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("reading database config: %w", err)
	}
	if !cfg.URL.IsSet() {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.URL.Unmask(), MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	res, err := seed(ctx, db.NewSpotRepository(pool), db.NewForecastRepository(pool), time.Now())
	if err != nil {
		return err
	}
	if res.Skipped {
		logger.Info("catalog already populated, nothing to do")
		return nil
	}
	logger.Info("seed complete", "spots", res.Spots, "forecasts", res.Forecasts)
	return nil
}
