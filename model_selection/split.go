// Package model_selection は学習データとテストデータの分割を提供します。
package model_selection

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Split は行インデックスの分割結果
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

// TrainTestSplit はn行をシャッフルして学習用とテスト用に分割する。
// テスト件数は ceil(testFraction*n)。同じ (n, testFraction, seed) からは
// 常に同じ分割が得られる。どちらかが空になる場合はInsufficientDataError
//
// 使用例:
//
//	split, err := model_selection.TrainTestSplit(100, 0.2, 42)
//	// len(split.TrainIndices) == 80, len(split.TestIndices) == 20
func TrainTestSplit(n int, testFraction float64, seed int) (Split, error) {
	if math.IsNaN(testFraction) || testFraction <= 0 || testFraction >= 1 {
		return Split{}, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	if n <= 0 {
		return Split{}, errors.NewInsufficientDataError("no samples to split")
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTrain <= 0 || nTest <= 0 {
		return Split{}, errors.NewInsufficientDataError(
			"need at least one training and one test sample after the split")
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	return Split{
		TestIndices:  indices[:nTest:nTest],
		TrainIndices: indices[nTest:],
	}, nil
}

// TakeRows はXから指定した行を順に取り出した新しい行列を返す
func TakeRows(X mat.Matrix, indices []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(indices), c, nil)
	for i, idx := range indices {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

// TakeValues はyから指定した要素を順に取り出したベクトルを返す
func TakeValues(y []float64, indices []int) *mat.VecDense {
	out := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		out.SetVec(i, y[idx])
	}
	return out
}
