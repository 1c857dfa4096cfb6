package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/YuminosukeSato/farecast/dataset"
	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/internal/retrain"
	"github.com/YuminosukeSato/farecast/internal/server"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/YuminosukeSato/farecast/report"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runGenerate(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	n := fs.Int("n", 2000, "number of trips (each yields one row per transport type)")
	seed := fs.Uint64("seed", 42, "random seed")
	out := fs.String("out", "data/trips.csv", "output CSV path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	records := dataset.Synthetic(dataset.SyntheticConfig{Samples: *n, Seed: *seed})
	if err := dataset.SaveCSV(*out, records); err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s\n", len(records), *out)
	return nil
}

func runCollect(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	in := fs.String("history", "", "history export (JSON array or one object per line)")
	days := fs.Int("days", dataset.DefaultHistoryDays, "keep records from the last N days")
	out := fs.String("out", "data/historical_data.csv", "output CSV path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.NewValidationError("history", "flag is required", *in)
	}
	records, err := dataset.LoadHistory(*in, time.Now(), *days)
	if err != nil {
		return err
	}
	if err := dataset.SaveCSV(*out, records); err != nil {
		return err
	}
	fmt.Printf("wrote %d history records from the last %d days to %s\n", len(records), *days, *out)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := configFlag(fs)
	data := fs.String("data", "", "trip CSV, overrides training.data_path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	td := e.trainingData()
	if *data != "" {
		td.Path = *data
	}
	records, source, err := td.Load(ctx)
	if err != nil {
		return err
	}

	m := fare.NewModel()
	meta, err := m.Train(records, e.trainOptions()...)
	if err != nil {
		return err
	}
	b, err := m.Bundle()
	if err != nil {
		return err
	}
	ref, err := e.store.Save(ctx, b)
	if err != nil {
		return err
	}

	fmt.Printf("trained %s on %d %s records (test %d)\n", meta.Version, meta.TrainingSamples, source, meta.TestSamples)
	fmt.Printf("MAE %.2f  RMSE %.2f  R² %.4f\n", meta.MAE, meta.RMSE, meta.R2)
	fmt.Printf("saved to %s\n\n", ref)
	return report.WriteImportanceTable(os.Stdout, meta.FeatureImportance, 5)
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	cfgPath := configFlag(fs)
	distance := fs.Float64("distance", 0, "trip distance in km")
	duration := fs.Float64("duration", -1, "trip duration in minutes (default distance*3)")
	hour := fs.Int("hour", -1, "hour of day (default now)")
	day := fs.Int("day", -1, "day of week, Monday=0 (default today)")
	transport := fs.String("transport", "cab", "transport type")
	provider := fs.String("provider", "obeer", "service provider")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	m, err := e.loadModel(ctx)
	if err != nil {
		return err
	}

	q := fare.Query{DistanceKm: *distance, TransportType: *transport, ServiceProvider: *provider}
	if *duration >= 0 {
		q.DurationMins = duration
	}
	if *hour >= 0 {
		q.Hour = hour
	}
	if *day >= 0 {
		q.DayOfWeek = day
	}
	f, rec, err := m.PredictQuery(q)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"predicted_fare":   f,
		"distance_km":      rec.DistanceKm,
		"duration_mins":    rec.DurationMins,
		"hour":             rec.Hour,
		"day_of_week":      rec.DayOfWeek,
		"transport_type":   rec.TransportType,
		"service_provider": rec.ServiceProvider,
	})
}

func runBestTime(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best-time", flag.ExitOnError)
	cfgPath := configFlag(fs)
	distance := fs.Float64("distance", 0, "trip distance in km")
	transport := fs.String("transport", "", "transport type (default from config)")
	provider := fs.String("provider", "", "service provider (default from config)")
	hours := fs.Int("hours", 0, "hours ahead (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	m, err := e.loadModel(ctx)
	if err != nil {
		return err
	}

	q := fare.BestTimeQuery{
		DistanceKm:      *distance,
		TransportType:   e.cfg.BestTime.TransportType,
		ServiceProvider: e.cfg.BestTime.ServiceProvider,
		HoursAhead:      e.cfg.BestTime.HoursAhead,
	}
	if *transport != "" {
		q.TransportType = *transport
	}
	if *provider != "" {
		q.ServiceProvider = *provider
	}
	if *hours > 0 {
		q.HoursAhead = *hours
	}
	rec, err := m.PredictBestTime(q)
	if err != nil {
		return err
	}
	if rec.CurrentFare != nil {
		fmt.Printf("now:  %.2f\n", *rec.CurrentFare)
	}
	fmt.Printf("best: %.2f at %s (wait %dh, save %.2f)\n",
		rec.BestFare, rec.BestTime.Format("Mon 15:04"), rec.WaitHours, rec.Savings)
	for _, p := range rec.Predictions {
		marker := ""
		if p.IsRushHour {
			marker = " rush"
		}
		fmt.Printf("  +%2dh %02d:00 %8.2f%s\n", p.Offset, p.Hour, p.Fare, marker)
	}
	return nil
}

func runImportance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("importance", flag.ExitOnError)
	cfgPath := configFlag(fs)
	plotPath := fs.String("plot", "", "write a bar chart (.png, .svg, .pdf) to this path")
	top := fs.Int("top", 0, "number of features to print (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	b, err := e.store.LoadLatest(ctx)
	if err != nil {
		return err
	}

	imps := b.Metadata.FeatureImportance
	if err := report.WriteImportanceTable(os.Stdout, imps, *top); err != nil {
		return err
	}
	if *plotPath == "" {
		return nil
	}
	title := fmt.Sprintf("Feature importance (%s)", b.Version)
	if err := report.SaveImportanceChart(*plotPath, imps, title); err != nil {
		return err
	}
	fmt.Printf("\nchart written to %s\n", *plotPath)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	logger := log.GetLoggerWithName("farecast")

	m := fare.NewModel(fare.WithModelClock(time.Now))
	if e.cfg.Model.LoadOnStart {
		b, err := e.store.LoadLatest(ctx)
		if err == nil {
			err = m.Load(b)
		}
		if err != nil {
			logger.Warn("Could not load a stored bundle", "error", err)
		}
	}

	td := e.trainingData()
	rt := retrain.New(m, e.store, func(ctx context.Context) ([]fare.TripRecord, error) {
		records, _, err := td.Load(ctx)
		return records, err
	}, e.trainOptions()...)

	if e.cfg.Training.TrainOnStart || (!m.IsTrained() && e.cfg.Retrain.Enabled) {
		if _, err := rt.RunOnce(ctx); err != nil {
			logger.Error("Initial training failed", err)
		}
	}
	if e.cfg.Retrain.Enabled {
		if err := rt.Start(ctx, e.cfg.Retrain.Schedule); err != nil {
			return err
		}
		defer rt.Stop()
	}

	opts := server.DefaultOptions()
	opts.Service = e.cfg.Server.Service
	opts.Mode = e.cfg.Server.Mode
	opts.ReadTimeout = e.cfg.Server.ReadTimeout
	opts.WriteTimeout = e.cfg.Server.WriteTimeout
	opts.DefaultHoursAhead = e.cfg.BestTime.HoursAhead
	opts.DefaultTransport = e.cfg.BestTime.TransportType
	opts.DefaultProvider = e.cfg.BestTime.ServiceProvider
	return server.New(m, opts).Run(ctx, e.cfg.Server.Addr)
}
