package fare

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/linear"
	"github.com/YuminosukeSato/farecast/metrics"
	"github.com/YuminosukeSato/farecast/model_selection"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/YuminosukeSato/farecast/preprocessing"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// TrainConfig controls Fit.
type TrainConfig struct {
	// TestFraction of the records held out for evaluation, in (0,1).
	TestFraction float64
	// RandomState seeds the split and the forest.
	RandomState int64
	Forest      ensemble.Params
	Clock       func() time.Time
}

// DefaultTrainConfig returns a 20% hold-out, seed 42 and the default forest.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		TestFraction: 0.2,
		RandomState:  42,
		Forest:       ensemble.DefaultParams(),
		Clock:        time.Now,
	}
}

// TrainOption modifies a TrainConfig.
type TrainOption func(*TrainConfig)

// WithTestFraction sets the hold-out fraction.
func WithTestFraction(f float64) TrainOption {
	return func(c *TrainConfig) { c.TestFraction = f }
}

// WithRandomState sets the split and forest seed.
func WithRandomState(seed int64) TrainOption {
	return func(c *TrainConfig) { c.RandomState = seed }
}

// WithForestParams sets the forest hyperparameters. Forest.RandomState is
// replaced by TrainConfig.RandomState.
func WithForestParams(p ensemble.Params) TrainOption {
	return func(c *TrainConfig) { c.Forest = p }
}

// WithClock sets the clock used for TrainedAt.
func WithClock(clock func() time.Time) TrainOption {
	return func(c *TrainConfig) { c.Clock = clock }
}

// Fit builds a complete, validated Bundle from labelled records. It does not
// touch any live model.
func Fit(records []TripRecord, cfg TrainConfig) (*Bundle, error) {
	logger := log.GetLoggerWithName("fare.trainer")
	start := time.Now()

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := checkLabels(records); err != nil {
		return nil, err
	}

	reg, err := preprocessing.FitEncoderRegistry(categoryColumns(records))
	if err != nil {
		return nil, errors.Wrap(err, "fit encoders")
	}

	n := len(records)
	X := mat.NewDense(n, NumFeatures, nil)
	y := make([]float64, n)
	for i, rec := range records {
		row, err := Derive(rec, reg)
		if err != nil {
			return nil, errors.Wrapf(err, "derive features for row %d", i)
		}
		X.SetRow(i, row)
		y[i] = rec.Fare
	}

	split, err := model_selection.TrainTestSplit(n, cfg.TestFraction, int(cfg.RandomState))
	if err != nil {
		return nil, err
	}
	XTrain := model_selection.TakeRows(X, split.TrainIndices)
	XTest := model_selection.TakeRows(X, split.TestIndices)
	yTrain := model_selection.TakeValues(y, split.TrainIndices)
	yTest := model_selection.TakeValues(y, split.TestIndices)

	scaler := preprocessing.NewStandardScaler()
	XTrainScaled, err := scaler.FitTransform(XTrain)
	if err != nil {
		return nil, errors.Wrap(err, "fit scaler")
	}
	XTestScaled, err := scaler.Transform(XTest)
	if err != nil {
		return nil, errors.Wrap(err, "scale test partition")
	}

	params := cfg.Forest
	params.RandomState = cfg.RandomState
	forest := ensemble.NewRandomForestRegressor(ensemble.WithParams(params))
	report, err := fitAndScore(forest, XTrainScaled, yTrain, XTestScaled, yTest)
	if err != nil {
		return nil, errors.Wrap(err, "regressor")
	}

	baseline := fitBaseline(XTrainScaled, yTrain, XTestScaled, yTest)

	importances, err := forest.FeatureImportances()
	if err != nil {
		return nil, err
	}

	version := uuid.New().String()
	meta := Metadata{
		Version:           version,
		MAE:               report.MAE,
		RMSE:              report.RMSE,
		R2:                report.R2,
		TrainingSamples:   len(split.TrainIndices),
		TestSamples:       len(split.TestIndices),
		FeatureImportance: rankImportances(importances),
		Categories: map[string][]string{
			FieldTransportType:   reg.Classes(FieldTransportType),
			FieldServiceProvider: reg.Classes(FieldServiceProvider),
		},
		TrainedAt: cfg.Clock().UTC(),
		Params: TrainParams{
			TestFraction: cfg.TestFraction,
			RandomState:  cfg.RandomState,
			Forest:       params,
		},
		Baseline: baseline,
	}

	bundle := &Bundle{
		Version:        version,
		Encoders:       reg,
		Scaler:         scaler,
		Regressor:      forest,
		FeatureColumns: append([]string(nil), FeatureColumns...),
		Metadata:       meta,
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Training completed",
		log.ModelNameKey, "RandomForestRegressor",
		log.ModelVersionKey, version,
		log.OperationKey, log.OperationFit,
		log.TrainSamplesKey, meta.TrainingSamples,
		log.TestSamplesKey, meta.TestSamples,
		log.MAEKey, meta.MAE,
		log.RMSEKey, meta.RMSE,
		log.R2ScoreKey, meta.R2,
		log.RandomSeedKey, cfg.RandomState,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return bundle, nil
}

// fitBaseline fits ordinary least squares on the scaled training partition
// and scores it on the test partition. Failures only cost the baseline.
func fitBaseline(XTrain mat.Matrix, yTrain *mat.VecDense, XTest mat.Matrix, yTest *mat.VecDense) *BaselineReport {
	report, err := fitAndScore(linear.NewLinearRegression(), XTrain, yTrain, XTest, yTest)
	if err != nil {
		log.GetLoggerWithName("fare.trainer").Warn("Linear baseline skipped", "error", err.Error())
		return nil
	}
	return &BaselineReport{Model: "linear_regression", MAE: report.MAE, RMSE: report.RMSE, R2: report.R2}
}

// fitAndScore fits est on the training partition and scores it on the
// test partition.
func fitAndScore(est model.Regressor, XTrain mat.Matrix, yTrain *mat.VecDense, XTest mat.Matrix, yTest *mat.VecDense) (metrics.RegressionReport, error) {
	if err := est.Fit(XTrain, yTrain); err != nil {
		return metrics.RegressionReport{}, errors.Wrap(err, "fit")
	}
	pred, err := est.Predict(XTest)
	if err != nil {
		return metrics.RegressionReport{}, errors.Wrap(err, "predict test partition")
	}
	return metrics.EvaluateRegression(yTest, mat.NewVecDense(yTest.Len(), mat.Col(nil, 0, pred)))
}

// checkLabels rejects empty input and unlabelled or invalid fares.
func checkLabels(records []TripRecord) error {
	if len(records) == 0 {
		return errors.NewInsufficientDataError("no training records")
	}
	for i, rec := range records {
		switch {
		case math.IsNaN(rec.Fare):
			return errors.NewInsufficientDataError(fmt.Sprintf("record %d has no fare label", i))
		case math.IsInf(rec.Fare, 0) || rec.Fare < 0:
			return errors.NewValidationError("fare", fmt.Sprintf("row %d: must be finite and >= 0", i), rec.Fare)
		}
	}
	return nil
}

func categoryColumns(records []TripRecord) map[string][]string {
	transports := make([]string, len(records))
	providers := make([]string, len(records))
	for i, rec := range records {
		transports[i] = rec.TransportType
		providers[i] = rec.ServiceProvider
	}
	return map[string][]string{
		FieldTransportType:   transports,
		FieldServiceProvider: providers,
	}
}

// rankImportances pairs importances with FeatureColumns and sorts them in
// descending order, ties in column order.
func rankImportances(importances []float64) []FeatureImportance {
	ranked := make([]FeatureImportance, len(importances))
	for i, imp := range importances {
		ranked[i] = FeatureImportance{Feature: FeatureColumns[i], Importance: imp}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	return ranked
}
