package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// zeroScaleTol 未満の標準偏差は分散ゼロとみなし、スケールを1にする
const zeroScaleTol = 1e-8

var _ model.Transformer = (*StandardScaler)(nil)

// StandardScaler はscikit-learn互換の標準化スケーラー
// 訓練データの列ごとの平均と母標準偏差を記憶し、データを平均0、標準偏差1に変換する
type StandardScaler struct {
	State *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の母標準偏差（分散ゼロの列は1）
	Scale []float64

	// NFeatures は特徴量の数
	NFeatures int
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler()
//	err := scaler.Fit(XTrain)
//	XScaled, err := scaler.Transform(XTest)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{State: model.NewStateManager()}
}

// IsFitted は学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool {
	return s != nil && s.State.IsFitted()
}

// Fit は訓練データから統計情報（平均、母標準偏差）を計算する。
// 学習は訓練時にのみ行い、以降のTransformは状態を変更しない
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, variance := stat.PopMeanVariance(col, nil)
		sd := math.Sqrt(variance)
		if err := errors.CheckScalar("StandardScaler.Fit", sd, j); err != nil {
			return err
		}
		if sd < zeroScaleTol {
			sd = 1.0
		}
		mean[j] = m
		scale[j] = sd
	}

	if s.State == nil {
		s.State = model.NewStateManager()
	}
	s.Mean = mean
	s.Scale = scale
	s.NFeatures = c
	s.State.SetDimensions(c, r)
	s.State.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.requireFitted("Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// TransformRow は1行分の特徴量を標準化する。予測時の単一クエリ用
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if err := s.requireFitted("TransformRow"); err != nil {
		return nil, err
	}
	if len(row) != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.TransformRow", s.NFeatures, len(row), 1)
	}

	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.requireFitted("InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// Validate はデコードしたスケーラーの整合性を検査する。
// Mean と Scale の長さは NFeatures と一致し、Scale は正の有限値でなければならない
func (s *StandardScaler) Validate() error {
	if err := s.requireFitted("Validate"); err != nil {
		return err
	}
	if s.NFeatures <= 0 || len(s.Mean) != s.NFeatures || len(s.Scale) != s.NFeatures {
		return errors.NewValueError("StandardScaler.Validate",
			fmt.Sprintf("n_features=%d but %d means and %d scales", s.NFeatures, len(s.Mean), len(s.Scale)))
	}
	for j := range s.Scale {
		if math.IsNaN(s.Mean[j]) || math.IsInf(s.Mean[j], 0) || !(s.Scale[j] > 0) || math.IsInf(s.Scale[j], 0) {
			return errors.NewValueError("StandardScaler.Validate", fmt.Sprintf("feature %d has mean %v scale %v", j, s.Mean[j], s.Scale[j]))
		}
	}
	return nil
}

func (s *StandardScaler) requireFitted(method string) error {
	if s == nil {
		return errors.NewNotFittedError("StandardScaler", method)
	}
	return s.State.RequireFitted("StandardScaler", method)
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return "StandardScaler()"
	}
	return fmt.Sprintf("StandardScaler(n_features=%d)", s.NFeatures)
}
