package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor は回帰モデルのインターフェース
type Regressor interface {
	Fitter
	Predictor
	// IsFitted は学習済みかどうかを返す
	IsFitted() bool
}

// FeatureImporter は特徴量重要度を提供するモデルのインターフェース
type FeatureImporter interface {
	// FeatureImportances は学習時の列順で正規化された重要度を返す
	FeatureImportances() ([]float64, error)
}
