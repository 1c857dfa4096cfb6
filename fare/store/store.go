// Package store persists fare bundles as a matched set of artifacts, either
// in a directory per version or in a SQLite catalogue. A load either yields
// a complete, validated bundle or fails with ArtifactMismatchError.
package store

import (
	"context"
	"encoding/json"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/preprocessing"
	"github.com/YuminosukeSato/farecast/sklearn/ensemble"
)

// BundleStore saves and loads bundles by reference.
type BundleStore interface {
	Save(ctx context.Context, b *fare.Bundle) (string, error)
	Load(ctx context.Context, ref string) (*fare.Bundle, error)
	LoadLatest(ctx context.Context) (*fare.Bundle, error)
}

// metadataDoc is the JSON layout of the metadata artifact.
type metadataDoc struct {
	Version        string        `json:"version"`
	FeatureColumns []string      `json:"feature_columns"`
	Metadata       fare.Metadata `json:"metadata"`
}

// artifacts are the four serialized components of one bundle.
type artifacts struct {
	Model    []byte
	Scaler   []byte
	Encoders []byte
	Metadata []byte
}

func encodeBundle(b *fare.Bundle) (artifacts, error) {
	if err := b.Validate(); err != nil {
		return artifacts{}, err
	}
	var a artifacts
	var err error
	if a.Model, err = model.MarshalModel(b.Regressor); err != nil {
		return artifacts{}, errors.Wrap(err, fare.ArtifactModel)
	}
	if a.Scaler, err = model.MarshalModel(b.Scaler); err != nil {
		return artifacts{}, errors.Wrap(err, fare.ArtifactScaler)
	}
	if a.Encoders, err = model.MarshalModel(b.Encoders); err != nil {
		return artifacts{}, errors.Wrap(err, fare.ArtifactEncoders)
	}
	a.Metadata, err = json.MarshalIndent(metadataDoc{
		Version:        b.Version,
		FeatureColumns: b.FeatureColumns,
		Metadata:       b.Metadata,
	}, "", "  ")
	if err != nil {
		return artifacts{}, errors.Wrap(err, fare.ArtifactMetadata)
	}
	return a, nil
}

func decodeBundle(a artifacts) (*fare.Bundle, error) {
	for name, data := range map[string][]byte{
		fare.ArtifactModel:    a.Model,
		fare.ArtifactScaler:   a.Scaler,
		fare.ArtifactEncoders: a.Encoders,
		fare.ArtifactMetadata: a.Metadata,
	} {
		if len(data) == 0 {
			return nil, errors.NewArtifactMismatchError(name, "artifact is missing or empty", nil)
		}
	}

	var doc metadataDoc
	if err := json.Unmarshal(a.Metadata, &doc); err != nil {
		return nil, errors.NewArtifactMismatchError(fare.ArtifactMetadata, "undecodable", err)
	}
	forest := &ensemble.RandomForestRegressor{}
	if err := model.UnmarshalModel(a.Model, forest); err != nil {
		return nil, errors.NewArtifactMismatchError(fare.ArtifactModel, "undecodable", err)
	}
	scaler := &preprocessing.StandardScaler{}
	if err := model.UnmarshalModel(a.Scaler, scaler); err != nil {
		return nil, errors.NewArtifactMismatchError(fare.ArtifactScaler, "undecodable", err)
	}
	encoders := &preprocessing.EncoderRegistry{}
	if err := model.UnmarshalModel(a.Encoders, encoders); err != nil {
		return nil, errors.NewArtifactMismatchError(fare.ArtifactEncoders, "undecodable", err)
	}

	b := &fare.Bundle{
		Version:        doc.Version,
		Encoders:       encoders,
		Scaler:         scaler,
		Regressor:      forest,
		FeatureColumns: doc.FeatureColumns,
		Metadata:       doc.Metadata,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
