// Package linear provides ordinary least squares regression. The fare
// trainer fits it next to the forest as a baseline on the same split.
package linear

import (
	"fmt"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/core/parallel"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ model.Regressor = (*LinearRegression)(nil)

// LinearRegression は線形回帰モデル
type LinearRegression struct {
	State        *model.StateManager
	FitIntercept bool
	Weights      []float64 // 重み（係数）
	Intercept    float64   // 切片
	NFeatures    int       // 特徴量の数
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{State: model.NewStateManager(), FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// IsFitted は学習済みかどうかを返す
func (lr *LinearRegression) IsFitted() bool {
	return lr != nil && lr.State.IsFitted()
}

// Fit はモデルを訓練データで学習させる。
// 最小二乗問題 min ||Aw - y|| を QR 分解で解く（A = [1, X]）。
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	offset := 0
	if lr.FitIntercept {
		offset = 1
	}
	if r < c+offset {
		return errors.NewInsufficientDataError(
			fmt.Sprintf("%d samples cannot determine %d coefficients", r, c+offset))
	}

	A := mat.NewDense(r, c+offset, nil)
	// 並列処理の閾値（この値以下の行数では逐次処理を使用）
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				A.Set(i, 0, 1.0)
			}
			for j := 0; j < c; j++ {
				A.Set(i, j+offset, X.At(i, j))
			}
		}
	})
	yVec := mat.NewVecDense(r, mat.Col(nil, 0, y))

	var w mat.VecDense
	if err := w.SolveVec(A, yVec); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
		}
		return errors.Wrap(err, "LinearRegression.Fit")
	}

	lr.Intercept = 0
	if offset == 1 {
		lr.Intercept = w.AtVec(0)
	}
	lr.Weights = make([]float64, c)
	for j := range lr.Weights {
		lr.Weights[j] = w.AtVec(j + offset)
	}
	lr.NFeatures = c
	if lr.State == nil {
		lr.State = model.NewStateManager()
	}
	lr.State.SetDimensions(c, r)
	lr.State.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.State.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.State.RequireFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Intercept
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// String returns a short description.
func (lr *LinearRegression) String() string {
	if !lr.IsFitted() {
		return "LinearRegression(fitted=false)"
	}
	return fmt.Sprintf("LinearRegression(n_features=%d, intercept=%.4f)", lr.NFeatures, lr.Intercept)
}
