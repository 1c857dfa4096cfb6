package config

import "time"

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	Mode         string        `yaml:"mode" validate:"oneof=debug release test"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	Service      string        `yaml:"service" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// ModelConfig selects where bundles are persisted.
type ModelConfig struct {
	Store       string `yaml:"store" validate:"oneof=file sqlite"`
	ArtifactDir string `yaml:"artifact_dir" validate:"required_if=Store file"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Store sqlite"`
	// LoadOnStart loads the latest stored bundle when serving.
	LoadOnStart bool `yaml:"load_on_start"`
}

// TrainingConfig controls where training data comes from and how it is split.
type TrainingConfig struct {
	DataPath     string  `yaml:"data_path"`
	TestFraction float64 `yaml:"test_fraction" validate:"gt=0,lt=1"`
	RandomState  int64   `yaml:"random_state"`
	// SyntheticSamples trips are generated when fewer than MinRecords real
	// records are available.
	SyntheticSamples int  `yaml:"synthetic_samples" validate:"gt=0"`
	MinRecords       int  `yaml:"min_records" validate:"gte=0"`
	TrainOnStart     bool `yaml:"train_on_start"`
}

// ForestConfig contains random forest hyperparameters.
type ForestConfig struct {
	NEstimators     int  `yaml:"n_estimators" validate:"gt=0"`
	MaxDepth        int  `yaml:"max_depth" validate:"gte=0"`
	MinSamplesSplit int  `yaml:"min_samples_split" validate:"gte=2"`
	MinSamplesLeaf  int  `yaml:"min_samples_leaf" validate:"gte=1"`
	MaxFeatures     int  `yaml:"max_features" validate:"gte=0"`
	Bootstrap       bool `yaml:"bootstrap"`
	NJobs           int  `yaml:"n_jobs"`
}

// BestTimeConfig contains request defaults for best-time queries.
type BestTimeConfig struct {
	HoursAhead      int    `yaml:"hours_ahead" validate:"gte=1,lte=168"`
	TransportType   string `yaml:"transport_type" validate:"required"`
	ServiceProvider string `yaml:"service_provider" validate:"required"`
}

// RetrainConfig schedules periodic retraining.
type RetrainConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule" validate:"required_if=Enabled true"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Forest   ForestConfig   `yaml:"forest"`
	BestTime BestTimeConfig `yaml:"best_time"`
	Retrain  RetrainConfig  `yaml:"retrain"`
}
