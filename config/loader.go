package config

import (
	"os"
	"strconv"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvHTTPAddr        = "FARECAST_HTTP_ADDR"
	EnvLogLevel        = "FARECAST_LOG_LEVEL"
	EnvArtifactDir     = "FARECAST_ARTIFACT_DIR"
	EnvSQLitePath      = "FARECAST_SQLITE_PATH"
	EnvModelStore      = "FARECAST_MODEL_STORE"
	EnvDataPath        = "FARECAST_DATA_PATH"
	EnvRetrainSchedule = "FARECAST_RETRAIN_SCHEDULE"
	EnvTrainOnStart    = "FARECAST_TRAIN_ON_START"
)

// Default returns the built-in configuration.
func Default() Config {
	forest := ensemble.DefaultParams()
	train := fare.DefaultTrainConfig()
	return Config{
		Server: ServerConfig{
			Addr:         ":5000",
			Mode:         "release",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			Service:      "fare-prediction",
		},
		Log:    LogConfig{Level: "info"},
		Model:  ModelConfig{Store: "file", ArtifactDir: "./models", SQLitePath: "./models/bundles.db"},
		Training: TrainingConfig{
			TestFraction:     train.TestFraction,
			RandomState:      train.RandomState,
			SyntheticSamples: 2000,
			MinRecords:       10,
		},
		Forest: ForestConfig{
			NEstimators:     forest.NEstimators,
			MaxDepth:        forest.MaxDepth,
			MinSamplesSplit: forest.MinSamplesSplit,
			MinSamplesLeaf:  forest.MinSamplesLeaf,
			MaxFeatures:     forest.MaxFeatures,
			Bootstrap:       forest.Bootstrap,
			NJobs:           forest.NJobs,
		},
		BestTime: BestTimeConfig{
			HoursAhead:      fare.DefaultHoursAhead,
			TransportType:   "cab",
			ServiceProvider: "obeer",
		},
		Retrain: RetrainConfig{Schedule: "0 3 * * *"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path yields the defaults with overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	for env, dst := range map[string]*string{
		EnvHTTPAddr:        &cfg.Server.Addr,
		EnvLogLevel:        &cfg.Log.Level,
		EnvArtifactDir:     &cfg.Model.ArtifactDir,
		EnvSQLitePath:      &cfg.Model.SQLitePath,
		EnvModelStore:      &cfg.Model.Store,
		EnvDataPath:        &cfg.Training.DataPath,
		EnvRetrainSchedule: &cfg.Retrain.Schedule,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(EnvTrainOnStart); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.NewValidationError(EnvTrainOnStart, "not a boolean", v)
		}
		cfg.Training.TrainOnStart = b
	}
	return nil
}

// Validate checks every section against its struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// ForestParams converts the forest section.
func (c Config) ForestParams() ensemble.Params {
	return ensemble.Params{
		NEstimators:     c.Forest.NEstimators,
		MaxDepth:        c.Forest.MaxDepth,
		MinSamplesSplit: c.Forest.MinSamplesSplit,
		MinSamplesLeaf:  c.Forest.MinSamplesLeaf,
		MaxFeatures:     c.Forest.MaxFeatures,
		Bootstrap:       c.Forest.Bootstrap,
		RandomState:     c.Training.RandomState,
		NJobs:           c.Forest.NJobs,
	}
}

// TrainConfig converts the training and forest sections.
func (c Config) TrainConfig() fare.TrainConfig {
	tc := fare.DefaultTrainConfig()
	tc.TestFraction = c.Training.TestFraction
	tc.RandomState = c.Training.RandomState
	tc.Forest = c.ForestParams()
	return tc
}
