// Package ensemble implements a bagged random forest regressor over
// sklearn/tree.DecisionTreeRegressor.
package ensemble

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/core/parallel"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/YuminosukeSato/farecast/sklearn/tree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params are the forest hyperparameters.
type Params struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"`
	Bootstrap       bool  `json:"bootstrap"`
	RandomState     int64 `json:"random_state"`
	// NJobs is the number of workers; <= 0 means all CPUs.
	NJobs int `json:"n_jobs"`
}

// DefaultParams returns the fare model defaults: 100 trees, depth 15,
// min_samples_split 5, min_samples_leaf 2, seed 42.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Bootstrap:       true,
		RandomState:     42,
		NJobs:           -1,
	}
}

// Option configures a RandomForestRegressor.
type Option func(*Params)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option { return func(p *Params) { p.NEstimators = n } }

// WithMaxDepth bounds tree depth; <= 0 means unlimited.
func WithMaxDepth(d int) Option { return func(p *Params) { p.MaxDepth = d } }

// WithMinSamplesSplit sets min_samples_split for every tree.
func WithMinSamplesSplit(n int) Option { return func(p *Params) { p.MinSamplesSplit = n } }

// WithMinSamplesLeaf sets min_samples_leaf for every tree.
func WithMinSamplesLeaf(n int) Option { return func(p *Params) { p.MinSamplesLeaf = n } }

// WithMaxFeatures sets features considered per split; <= 0 means all.
func WithMaxFeatures(n int) Option { return func(p *Params) { p.MaxFeatures = n } }

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option { return func(p *Params) { p.Bootstrap = b } }

// WithRandomState sets the base seed. Tree i uses seed RandomState+i.
func WithRandomState(seed int64) Option { return func(p *Params) { p.RandomState = seed } }

// WithNJobs sets the worker count.
func WithNJobs(n int) Option { return func(p *Params) { p.NJobs = n } }

// WithParams replaces all hyperparameters at once.
func WithParams(params Params) Option { return func(p *Params) { *p = params } }

var (
	_ model.Regressor       = (*RandomForestRegressor)(nil)
	_ model.FeatureImporter = (*RandomForestRegressor)(nil)
)

// RandomForestRegressor はscikit-learn互換のランダムフォレスト回帰
// 各木はブートストラップ標本で学習し、予測は全ての木の平均。
// 木ごとに独立した乱数源を持つため、並列度に関係なく結果は同一
type RandomForestRegressor struct {
	State  *model.StateManager
	Params Params

	Trees       []*tree.DecisionTreeRegressor
	Importances []float64
}

// NewRandomForestRegressor creates a forest with DefaultParams and opts applied.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	params := DefaultParams()
	for _, opt := range opts {
		opt(&params)
	}
	return &RandomForestRegressor{
		State:  model.NewStateManager(),
		Params: params,
	}
}

// IsFitted returns whether the forest has been fitted.
func (rf *RandomForestRegressor) IsFitted() bool {
	return rf != nil && rf.State.IsFitted()
}

// NFeatures returns the width of the training matrix.
func (rf *RandomForestRegressor) NFeatures() int {
	if rf == nil {
		return 0
	}
	nf, _ := rf.State.GetDimensions()
	return nf
}

func (rf *RandomForestRegressor) validateParams() error {
	p := rf.Params
	if p.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", p.NEstimators)
	}
	if p.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", p.MinSamplesSplit)
	}
	if p.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", p.MinSamplesLeaf)
	}
	return nil
}

// Fit trains NEstimators trees on X (n×p) and y (n×1).
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	if err := rf.validateParams(); err != nil {
		return err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	yr, yc := y.Dims()
	if yc != 1 {
		return errors.NewDimensionError("RandomForestRegressor.Fit", 1, yc, 1)
	}
	if yr != n {
		return errors.NewDimensionError("RandomForestRegressor.Fit", n, yr, 0)
	}

	logger := log.GetLoggerWithName("ensemble").With(
		log.ModelNameKey, "RandomForestRegressor",
		log.OperationKey, log.OperationFit,
	)
	start := time.Now()

	Xd := mat.DenseCopyOf(X)
	yv := mat.Col(nil, 0, y)
	params := rf.Params
	trees := make([]*tree.DecisionTreeRegressor, params.NEstimators)
	treeErrs := make([]error, params.NEstimators)

	parallel.ParallelizeN(params.NEstimators, params.NJobs, func(startIdx, endIdx int) {
		for i := startIdx; i < endIdx; i++ {
			trees[i], treeErrs[i] = fitTree(Xd, yv, params, i)
		}
	})

	for i, terr := range treeErrs {
		if terr != nil {
			return errors.Wrapf(terr, "fit tree %d", i)
		}
	}

	importances := make([]float64, p)
	allLeaves := true
	for _, t := range trees {
		floats.Add(importances, t.Importances)
		if t.GetNLeaves() > 1 {
			allLeaves = false
		}
	}
	if total := floats.Sum(importances); total > 0 {
		floats.Scale(1/total, importances)
	}
	if allLeaves {
		errors.Warn(errors.NewConvergenceWarning("RandomForestRegressor", params.NEstimators,
			"every tree is a single leaf; the target may be constant"))
	}

	if rf.State == nil {
		rf.State = model.NewStateManager()
	}
	rf.Trees = trees
	rf.Importances = importances
	rf.State.SetDimensions(p, n)
	rf.State.SetFitted()

	logger.Debug("Forest fitted",
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TreesKey, len(trees),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// fitTree fits tree i on its own bootstrap sample. The sample and any
// feature subsampling draw from a PCG source seeded with RandomState+i.
func fitTree(X *mat.Dense, y []float64, params Params, i int) (*tree.DecisionTreeRegressor, error) {
	seed := params.RandomState + int64(i)
	n, _ := X.Dims()

	indices := make([]int, n)
	if params.Bootstrap {
		r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
		for k := range indices {
			indices[k] = r.IntN(n)
		}
	} else {
		for k := range indices {
			indices[k] = k
		}
	}

	t := tree.NewDecisionTreeRegressor(
		tree.WithMaxDepth(params.MaxDepth),
		tree.WithMinSamplesSplit(params.MinSamplesSplit),
		tree.WithMinSamplesLeaf(params.MinSamplesLeaf),
		tree.WithMaxFeatures(params.MaxFeatures),
		tree.WithRandomState(seed),
	)
	if err := t.FitSamples(X, y, indices); err != nil {
		return nil, err
	}
	return t, nil
}

// Predict returns the n×1 matrix of mean tree predictions.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.requireFitted("Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.State.RequireFeatures("RandomForestRegressor.Predict", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		v, err := rf.PredictRow(row)
		if err != nil {
			return nil, err
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// PredictRow predicts a single sample.
func (rf *RandomForestRegressor) PredictRow(row []float64) (float64, error) {
	if err := rf.requireFitted("PredictRow"); err != nil {
		return 0, err
	}
	var sum float64
	for _, t := range rf.Trees {
		v, err := t.PredictRow(row)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(rf.Trees)), nil
}

// FeatureImportances returns the mean over trees of each tree's normalized
// impurity decrease, normalized to sum 1, in column order.
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if err := rf.requireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.Importances...), nil
}

// Validate checks a fitted (typically decoded) forest: every tree must be
// valid and trained on the same number of features as the forest.
func (rf *RandomForestRegressor) Validate() error {
	const op = "RandomForestRegressor.Validate"
	if err := rf.requireFitted("Validate"); err != nil {
		return err
	}
	nf := rf.NFeatures()
	if len(rf.Importances) != nf {
		return errors.NewValueError(op, fmt.Sprintf("%d importances for %d features", len(rf.Importances), nf))
	}
	for i, t := range rf.Trees {
		if t == nil {
			return errors.NewValueError(op, fmt.Sprintf("tree %d is nil", i))
		}
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		if t.NFeatures() != nf {
			return errors.NewValueError(op, fmt.Sprintf("tree %d fitted on %d features, forest on %d", i, t.NFeatures(), nf))
		}
	}
	return nil
}

// GetParams returns the hyperparameters.
func (rf *RandomForestRegressor) GetParams() Params {
	return rf.Params
}

// String returns a short description of the forest.
func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, min_samples_split=%d, min_samples_leaf=%d, random_state=%d)",
		rf.Params.NEstimators, rf.Params.MaxDepth, rf.Params.MinSamplesSplit, rf.Params.MinSamplesLeaf, rf.Params.RandomState)
}

func (rf *RandomForestRegressor) requireFitted(method string) error {
	if rf == nil {
		return errors.NewNotFittedError("RandomForestRegressor", method)
	}
	if err := rf.State.RequireFitted("RandomForestRegressor", method); err != nil {
		return err
	}
	if len(rf.Trees) == 0 {
		return errors.NewModelError("RandomForestRegressor."+method, "fitted forest has no trees", nil)
	}
	return nil
}
