package main

import (
	"context"
	"flag"
	"time"

	"github.com/YuminosukeSato/farecast/config"
	"github.com/YuminosukeSato/farecast/dataset"
	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/fare/store"
	"github.com/YuminosukeSato/farecast/pkg/log"
)

// env is the per-command wiring derived from the config file.
type env struct {
	cfg   config.Config
	store store.BundleStore
	close func() error
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "path to YAML config (defaults and FARECAST_* env otherwise)")
}

// setup loads the config, configures logging and opens the model store.
func setup(path string) (*env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.SetupLogger(cfg.Log.Level)

	e := &env{cfg: cfg, close: func() error { return nil }}
	switch cfg.Model.Store {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Model.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.store, e.close = s, s.Close
	default:
		s, err := store.NewFileStore(cfg.Model.ArtifactDir)
		if err != nil {
			return nil, err
		}
		e.store = s
	}
	return e, nil
}

func (e *env) trainingData() dataset.TrainingData {
	return dataset.TrainingData{
		Path:       e.cfg.Training.DataPath,
		MinRecords: e.cfg.Training.MinRecords,
		Synthetic: dataset.SyntheticConfig{
			Samples: e.cfg.Training.SyntheticSamples,
			Seed:    uint64(e.cfg.Training.RandomState),
		},
	}
}

func (e *env) trainOptions() []fare.TrainOption {
	tc := e.cfg.TrainConfig()
	return []fare.TrainOption{
		fare.WithTestFraction(tc.TestFraction),
		fare.WithRandomState(tc.RandomState),
		fare.WithForestParams(tc.Forest),
	}
}

// loadModel returns a model holding the latest stored bundle.
func (e *env) loadModel(ctx context.Context) (*fare.Model, error) {
	b, err := e.store.LoadLatest(ctx)
	if err != nil {
		return nil, err
	}
	m := fare.NewModel(fare.WithModelClock(time.Now))
	if err := m.Load(b); err != nil {
		return nil, err
	}
	return m, nil
}
