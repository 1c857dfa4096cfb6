// Package tree implements a CART decision tree regressor with the MSE
// criterion, the base learner of the ensemble package.
package tree

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/farecast/core/model"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// leafFeature marks a leaf in Node.Feature.
const leafFeature = -1

// impurityTol 以下の不純度のノードは分割しない
const impurityTol = 1e-12

// Node is one node of a fitted tree. Nodes are stored in a flat slice in
// depth-first order; Left and Right index into that slice.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	NSamples  int
	Impurity  float64
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

var (
	_ model.Regressor       = (*DecisionTreeRegressor)(nil)
	_ model.FeatureImporter = (*DecisionTreeRegressor)(nil)
)

// DecisionTreeRegressor はscikit-learn互換のCART回帰木
// 分割基準は平均二乗誤差（MSE）。学習後は読み取り専用で、並行して予測できる
type DecisionTreeRegressor struct {
	State *model.StateManager

	// ハイパーパラメータ
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64

	// 学習結果
	Nodes       []Node
	Importances []float64
	Depth       int
	NLeaves     int
}

// NewDecisionTreeRegressor creates a regressor with sklearn defaults
// (unlimited depth, min_samples_split=2, min_samples_leaf=1, all features).
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		State:           model.NewStateManager(),
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// IsFitted returns whether the tree has been fitted.
func (dt *DecisionTreeRegressor) IsFitted() bool {
	return dt != nil && dt.State.IsFitted()
}

// Fit grows the tree on X (n×p) and y (n×1).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	n, _ := X.Dims()
	yr, yc := y.Dims()
	if yc != 1 {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", 1, yc, 1)
	}
	if yr != n {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", n, yr, 0)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return dt.FitSamples(X, mat.Col(nil, 0, y), indices)
}

// FitSamples grows the tree on the rows of X listed in indices. Repeated
// indices act as sample weights, which is how bootstrap samples are passed.
func (dt *DecisionTreeRegressor) FitSamples(X mat.Matrix, y []float64, indices []int) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if err := dt.validateParams(); err != nil {
		return err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 || len(indices) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != n {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", n, len(y), 0)
	}
	if err := errors.CheckNumericalStability("DecisionTreeRegressor.Fit", y, 0); err != nil {
		return err
	}

	b := &builder{
		dt:          dt,
		X:           mat.DenseCopyOf(X),
		y:           y,
		nFeatures:   p,
		importances: make([]float64, p),
		rng:         rand.New(rand.NewPCG(uint64(dt.RandomState), uint64(dt.RandomState))),
	}
	idx := append([]int(nil), indices...)
	b.grow(idx, 0)

	if total := floats.Sum(b.importances); total > 0 {
		floats.Scale(1/total, b.importances)
	}

	if dt.State == nil {
		dt.State = model.NewStateManager()
	}
	dt.Nodes = b.nodes
	dt.Importances = b.importances
	dt.Depth = b.maxDepth
	dt.NLeaves = b.nLeaves
	dt.State.SetDimensions(p, len(indices))
	dt.State.SetFitted()
	return nil
}

func (dt *DecisionTreeRegressor) validateParams() error {
	if dt.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.MinSamplesSplit)
	}
	if dt.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.MinSamplesLeaf)
	}
	return nil
}

// Predict returns an n×1 matrix of predictions.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.requireFitted("Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.State.RequireFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.predictRow(row))
	}
	return out, nil
}

// PredictRow predicts a single sample.
func (dt *DecisionTreeRegressor) PredictRow(row []float64) (float64, error) {
	if err := dt.requireFitted("PredictRow"); err != nil {
		return 0, err
	}
	if err := dt.State.RequireFeatures("DecisionTreeRegressor.PredictRow", len(row)); err != nil {
		return 0, err
	}
	return dt.predictRow(row), nil
}

func (dt *DecisionTreeRegressor) predictRow(row []float64) float64 {
	i := 0
	for {
		node := &dt.Nodes[i]
		if node.IsLeaf() {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// FeatureImportances returns the normalized total impurity decrease per
// feature, in column order.
func (dt *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if err := dt.requireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), dt.Importances...), nil
}

// NFeatures returns the width of the training matrix.
func (dt *DecisionTreeRegressor) NFeatures() int {
	if dt == nil || dt.State == nil {
		return 0
	}
	nf, _ := dt.State.GetDimensions()
	return nf
}

// Validate checks that a fitted (typically decoded) tree can be traversed:
// every split references an existing feature and children come after
// their parent in Nodes, so prediction always reaches a leaf.
func (dt *DecisionTreeRegressor) Validate() error {
	const op = "DecisionTreeRegressor.Validate"
	if !dt.IsFitted() {
		return errors.NewNotFittedError("DecisionTreeRegressor", "Validate")
	}
	nf := dt.NFeatures()
	if nf <= 0 {
		return errors.NewValueError(op, "no feature count recorded")
	}
	if len(dt.Nodes) == 0 {
		return errors.NewValueError(op, "tree has no nodes")
	}
	if len(dt.Importances) != nf {
		return errors.NewValueError(op, fmt.Sprintf("%d importances for %d features", len(dt.Importances), nf))
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf() {
			continue
		}
		if node.Feature < 0 || node.Feature >= nf {
			return errors.NewValueError(op, fmt.Sprintf("node %d splits on feature %d of %d", i, node.Feature, nf))
		}
		for _, child := range []int{node.Left, node.Right} {
			if child <= i || child >= len(dt.Nodes) {
				return errors.NewValueError(op, fmt.Sprintf("node %d has child %d out of range", i, child))
			}
		}
	}
	return nil
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (dt *DecisionTreeRegressor) GetDepth() int {
	return dt.Depth
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	return dt.NLeaves
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         "squared_error",
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
		"max_features":      dt.MaxFeatures,
		"random_state":      dt.RandomState,
	}
}

// String returns a short description of the tree.
func (dt *DecisionTreeRegressor) String() string {
	if !dt.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d)", dt.MaxDepth)
	}
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, depth=%d, n_leaves=%d)",
		dt.MaxDepth, dt.Depth, dt.NLeaves)
}

func (dt *DecisionTreeRegressor) requireFitted(method string) error {
	if dt == nil {
		return errors.NewNotFittedError("DecisionTreeRegressor", method)
	}
	return dt.State.RequireFitted("DecisionTreeRegressor", method)
}

// builder holds the scratch state of one Fit call.
type builder struct {
	dt          *DecisionTreeRegressor
	X           *mat.Dense
	y           []float64
	nFeatures   int
	importances []float64
	rng         *rand.Rand

	nodes    []Node
	maxDepth int
	nLeaves  int
}

type split struct {
	feature     int
	threshold   float64
	pos         int // samples [0,pos) of the sorted indices go left
	improvement float64
	sorted      []int
}

// grow appends the subtree over idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	n := len(idx)
	mean, impurity := b.stats(idx)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  leafFeature,
		Left:     -1,
		Right:    -1,
		Value:    mean,
		NSamples: n,
		Impurity: impurity,
	})
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	dt := b.dt
	stop := (dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		n < dt.MinSamplesSplit ||
		n < 2*dt.MinSamplesLeaf ||
		impurity <= impurityTol
	if stop {
		b.nLeaves++
		return id
	}

	best, ok := b.bestSplit(idx, impurity)
	if !ok {
		b.nLeaves++
		return id
	}

	b.importances[best.feature] += best.improvement

	left := append([]int(nil), best.sorted[:best.pos]...)
	right := append([]int(nil), best.sorted[best.pos:]...)
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	node := &b.nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return id
}

// stats returns the mean and the MSE impurity of y over idx.
func (b *builder) stats(idx []int) (mean, impurity float64) {
	var sum, sumSq float64
	for _, i := range idx {
		v := b.y[i]
		sum += v
		sumSq += v * v
	}
	n := float64(len(idx))
	mean = sum / n
	impurity = sumSq/n - mean*mean
	if impurity < 0 {
		impurity = 0
	}
	return mean, impurity
}

// candidateFeatures returns the features examined at one node.
func (b *builder) candidateFeatures() []int {
	k := b.dt.MaxFeatures
	if k <= 0 || k >= b.nFeatures {
		features := make([]int, b.nFeatures)
		for i := range features {
			features[i] = i
		}
		return features
	}
	features := b.rng.Perm(b.nFeatures)[:k]
	sort.Ints(features)
	return features
}

// bestSplit scans every candidate feature and threshold and returns the
// split with the largest weighted impurity decrease. Ties keep the first
// split found, so results depend only on the input order.
func (b *builder) bestSplit(idx []int, impurity float64) (split, bool) {
	n := len(idx)
	minLeaf := b.dt.MinSamplesLeaf
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}

	var best split
	found := false
	for _, f := range b.candidateFeatures() {
		sorted := append([]int(nil), idx...)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], f) < b.X.At(sorted[c], f)
		})

		// proxy: maximise sumL²/nL + sumR²/nR, equivalent to minimising
		// the weighted child MSE
		var sumL float64
		bestProxy := -1.0
		bestPos := -1
		for pos := 1; pos < n; pos++ {
			sumL += b.y[sorted[pos-1]]
			if pos < minLeaf || n-pos < minLeaf {
				continue
			}
			xPrev := b.X.At(sorted[pos-1], f)
			xNext := b.X.At(sorted[pos], f)
			if xNext <= xPrev {
				continue
			}
			sumR := total - sumL
			proxy := sumL*sumL/float64(pos) + sumR*sumR/float64(n-pos)
			if proxy > bestProxy {
				bestProxy = proxy
				bestPos = pos
			}
		}
		if bestPos < 0 {
			continue
		}

		_, leftImp := b.stats(sorted[:bestPos])
		_, rightImp := b.stats(sorted[bestPos:])
		improvement := float64(n)*impurity -
			float64(bestPos)*leftImp - float64(n-bestPos)*rightImp
		if improvement <= 0 {
			continue
		}
		if !found || improvement > best.improvement {
			threshold := (b.X.At(sorted[bestPos-1], f) + b.X.At(sorted[bestPos], f)) / 2
			// midpoint can round up to the right value
			if threshold >= b.X.At(sorted[bestPos], f) {
				threshold = b.X.At(sorted[bestPos-1], f)
			}
			best = split{
				feature:     f,
				threshold:   threshold,
				pos:         bestPos,
				improvement: improvement,
				sorted:      sorted,
			}
			found = true
		}
	}
	return best, found
}
