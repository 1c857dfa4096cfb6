// Package log defines standard attribute keys for fare model operations.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so training and serving logs can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "RandomForestRegressor", "StandardScaler", "LabelEncoder"
	ModelNameKey = "model.name"

	// ModelVersionKey identifies a trained bundle.
	ModelVersionKey = "model.version"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "best_time", "load", "save"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// TrainSamplesKey and TestSamplesKey record the split sizes.
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// MAEKey records mean absolute error.
	MAEKey = "metrics.mae"

	// RMSEKey records root mean squared error.
	RMSEKey = "metrics.rmse"

	// R2ScoreKey records R² coefficient of determination for regression.
	R2ScoreKey = "metrics.r2_score"

	// TreesKey records the number of fitted trees.
	TreesKey = "training.trees"
)

// Prediction and Output Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// SkippedKey indicates the number of predictions that were skipped.
	SkippedKey = "preds.skipped"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationBestTime  = "best_time"
	OperationLoad      = "load"
	OperationSave      = "save"

	PhaseTraining  = "training"
	PhaseTesting   = "testing"
	PhaseInference = "inference"

	ErrorNotTrained        = "NOT_TRAINED"
	ErrorUnknownCategory   = "UNKNOWN_CATEGORY"
	ErrorArtifactMismatch  = "ARTIFACT_MISMATCH"
	ErrorInsufficientData  = "INSUFFICIENT_DATA"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
)
