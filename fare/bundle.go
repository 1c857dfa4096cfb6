package fare

import (
	"fmt"
	"time"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/preprocessing"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
)

// Artifact names used in ArtifactMismatchError and by the stores.
const (
	ArtifactModel    = "fare_prediction_model"
	ArtifactScaler   = "scaler"
	ArtifactEncoders = "label_encoders"
	ArtifactMetadata = "model_metadata"
)

// FeatureImportance is one ranked entry of Metadata.FeatureImportance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainParams records how a bundle was trained.
type TrainParams struct {
	TestFraction float64         `json:"test_fraction"`
	RandomState  int64           `json:"random_state"`
	Forest       ensemble.Params `json:"forest"`
}

// BaselineReport holds hold-out metrics of the linear baseline fitted on
// the same split as the forest.
type BaselineReport struct {
	Model string  `json:"model"`
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	R2    float64 `json:"r2"`
}

// Metadata describes a trained bundle.
type Metadata struct {
	Version           string              `json:"version"`
	MAE               float64             `json:"mae"`
	RMSE              float64             `json:"rmse"`
	R2                float64             `json:"r2"`
	TrainingSamples   int                 `json:"training_samples"`
	TestSamples       int                 `json:"test_samples"`
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	Categories        map[string][]string `json:"categories"`
	TrainedAt         time.Time           `json:"trained_at"`
	Params            TrainParams         `json:"params"`
	// Baseline is nil when the linear fit was not possible.
	Baseline *BaselineReport `json:"baseline,omitempty"`
}

// Bundle is an immutable set of fitted components that must be used
// together. It is never mutated after construction; concurrent predictions
// may share it.
type Bundle struct {
	Version        string
	Encoders       *preprocessing.EncoderRegistry
	Scaler         *preprocessing.StandardScaler
	Regressor      *ensemble.RandomForestRegressor
	FeatureColumns []string
	Metadata       Metadata
}

// Validate checks that every component is present and fitted and that the
// components agree on the feature layout.
func (b *Bundle) Validate() error {
	if b == nil {
		return errors.NewArtifactMismatchError("bundle", "bundle is nil", nil)
	}
	if b.Version == "" {
		return errors.NewArtifactMismatchError(ArtifactMetadata, "missing version", nil)
	}
	if b.Encoders == nil {
		return errors.NewArtifactMismatchError(ArtifactEncoders, "missing encoder registry", nil)
	}
	for _, field := range []string{FieldTransportType, FieldServiceProvider} {
		enc, ok := b.Encoders.Encoder(field)
		if !ok || !enc.IsFitted() || enc.NClasses() == 0 {
			return errors.NewArtifactMismatchError(ArtifactEncoders,
				fmt.Sprintf("no fitted encoder for %s", field), nil)
		}
	}
	if !b.Scaler.IsFitted() {
		return errors.NewArtifactMismatchError(ArtifactScaler, "scaler missing or not fitted", nil)
	}
	if err := b.Scaler.Validate(); err != nil {
		return errors.NewArtifactMismatchError(ArtifactScaler, "inconsistent scaler", err)
	}
	if !b.Regressor.IsFitted() || len(b.Regressor.Trees) == 0 {
		return errors.NewArtifactMismatchError(ArtifactModel, "regressor missing or not fitted", nil)
	}
	if err := b.Regressor.Validate(); err != nil {
		return errors.NewArtifactMismatchError(ArtifactModel, "inconsistent regressor", err)
	}

	if len(b.FeatureColumns) != NumFeatures {
		return errors.NewArtifactMismatchError(ArtifactMetadata,
			fmt.Sprintf("expected %d feature columns, got %d", NumFeatures, len(b.FeatureColumns)), nil)
	}
	for i, col := range FeatureColumns {
		if b.FeatureColumns[i] != col {
			return errors.NewArtifactMismatchError(ArtifactMetadata,
				fmt.Sprintf("feature column %d is %q, want %q", i, b.FeatureColumns[i], col), nil)
		}
	}
	if b.Scaler.NFeatures != NumFeatures {
		return errors.NewArtifactMismatchError(ArtifactScaler,
			fmt.Sprintf("scaler fitted on %d features, want %d", b.Scaler.NFeatures, NumFeatures), nil)
	}
	if nf := b.Regressor.NFeatures(); nf != NumFeatures {
		return errors.NewArtifactMismatchError(ArtifactModel,
			fmt.Sprintf("regressor fitted on %d features, want %d", nf, NumFeatures), nil)
	}
	if b.Metadata.Version != b.Version {
		return errors.NewArtifactMismatchError(ArtifactMetadata,
			fmt.Sprintf("metadata version %s does not match bundle %s", b.Metadata.Version, b.Version), nil)
	}
	return nil
}
