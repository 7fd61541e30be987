// Package tree implements a CART decision-tree classifier.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

const modelName = "DecisionTreeClassifier"

// minimum impurity decrease for a split to be kept
const minGain = 1e-12

// Node is one node of a fitted tree, stored in a flat slice. Exported for gob.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x <= Threshold goes left
	Left      int
	Right     int
	NSamples  int
	Impurity  float64
	Value     []float64 // class frequencies at the node, aligned with Classes
}

// State is the serialisable form of a fitted tree.
type State struct {
	Classes     []float64
	Nodes       []Node
	NFeatures   int
	Importances []float64
}

// DecisionTreeClassifier is a CART classifier with gini or entropy splits.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features examined per split; 0 means all
	randomState     uint64

	// Fitted
	classes_     []float64
	nClasses_    int
	nodes        []Node
	importances_ []float64

	rng *rand.Rand
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure ("gini" or "entropy").
func WithCriterion(c string) Option {
	return func(t *DecisionTreeClassifier) { t.criterion = c }
}

// WithMaxDepth limits tree depth (root depth = 0). 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(t *DecisionTreeClassifier) { t.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum node size eligible for splitting.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each child.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many randomly chosen features are examined per split.
func WithMaxFeatures(k int) Option {
	return func(t *DecisionTreeClassifier) { t.maxFeatures = k }
}

// WithRandomState seeds the feature subsampling.
func WithRandomState(seed uint64) Option {
	return func(t *DecisionTreeClassifier) { t.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree with gini impurity and no depth limit.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := &DecisionTreeClassifier{
		state:           model.NewStateManager(modelName),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *DecisionTreeClassifier) validateParams() error {
	switch {
	case t.criterion != "gini" && t.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be gini or entropy", t.criterion)
	case t.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", t.maxDepth)
	case t.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", t.minSamplesSplit)
	case t.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", t.minSamplesLeaf)
	case t.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be >= 0", t.maxFeatures)
	}
	return nil
}

// Data is a column-major copy of a training set that several trees can share.
type Data struct {
	cols    [][]float64
	y       []int // class index per row
	classes []float64
	n, p    int
}

// NewData prepares X (n × p) and y (n × 1) for fitting.
func NewData(X, y mat.Matrix) (*Data, error) {
	n, p := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || p == 0 {
		return nil, errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if n != yRows {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}

	d := &Data{cols: make([][]float64, p), y: make([]int, n), n: n, p: p}
	for j := 0; j < p; j++ {
		d.cols[j] = mat.Col(nil, j, X)
	}
	labels := make([]float64, n)
	set := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		labels[i] = y.At(i, 0)
		if math.IsNaN(labels[i]) {
			return nil, errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("NaN label at row %d", i))
		}
		set[labels[i]] = struct{}{}
	}
	for c := range set {
		d.classes = append(d.classes, c)
	}
	sort.Float64s(d.classes)
	for i, l := range labels {
		d.y[i] = sort.SearchFloat64s(d.classes, l)
	}
	return d, nil
}

// NSamples returns the number of rows.
func (d *Data) NSamples() int { return d.n }

// NFeatures returns the number of columns.
func (d *Data) NFeatures() int { return d.p }

// Classes returns the sorted class labels.
func (d *Data) Classes() []float64 { return d.classes }

// Fit builds the tree on every row of X.
func (t *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	d, err := NewData(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, d.n)
	for i := range idx {
		idx[i] = i
	}
	return t.FitData(d, idx)
}

// FitData builds the tree on the rows listed in sample. Repeated indices act
// as case weights, so a bootstrap resample can be passed directly.
func (t *DecisionTreeClassifier) FitData(d *Data, sample []int) error {
	if err := t.validateParams(); err != nil {
		return err
	}
	if len(sample) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty sample", errors.ErrEmptyData)
	}

	t.classes_ = append([]float64(nil), d.classes...)
	t.nClasses_ = len(d.classes)
	t.nodes = t.nodes[:0]
	t.importances_ = make([]float64, d.p)
	t.rng = rand.New(rand.NewPCG(t.randomState, t.randomState^0x9e3779b97f4a7c15))

	b := &builder{tree: t, data: d, features: make([]int, d.p)}
	for j := range b.features {
		b.features[j] = j
	}
	b.grow(append([]int(nil), sample...), 0)

	total := 0.0
	for _, v := range t.importances_ {
		total += v
	}
	if total > 0 {
		for j := range t.importances_ {
			t.importances_[j] /= total
		}
	}

	t.state.SetFitted(d.p, len(sample))
	return nil
}

type builder struct {
	tree     *DecisionTreeClassifier
	data     *Data
	features []int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	t := b.tree
	counts := make([]float64, t.nClasses_)
	for _, i := range idx {
		counts[b.data.y[i]]++
	}
	n := float64(len(idx))
	value := make([]float64, len(counts))
	for c := range counts {
		value[c] = counts[c] / n
	}

	self := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Leaf:     true,
		NSamples: len(idx),
		Impurity: t.impurity(counts, n),
		Value:    value,
	})

	if isPure(counts) || len(idx) < t.minSamplesSplit || len(idx) < 2*t.minSamplesLeaf ||
		(t.maxDepth > 0 && depth >= t.maxDepth) {
		return self
	}

	best := b.bestSplit(idx, counts, t.nodes[self].Impurity)
	if best.feature < 0 {
		return self
	}

	col := b.data.cols[best.feature]
	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, len(idx)-best.nLeft)
	for _, i := range idx {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.importances_[best.feature] += n * best.gain

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	node := &t.nodes[self]
	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return self
}

// bestSplit scans sorted values of each candidate feature. The first feature
// in the sampled order wins ties.
func (b *builder) bestSplit(idx []int, counts []float64, parentImpurity float64) split {
	t := b.tree
	candidates := b.features
	if t.maxFeatures > 0 && t.maxFeatures < len(candidates) {
		// partial Fisher-Yates
		for i := 0; i < t.maxFeatures; i++ {
			j := i + t.rng.IntN(len(candidates)-i)
			candidates[i], candidates[j] = candidates[j], candidates[i]
		}
		candidates = candidates[:t.maxFeatures]
	}

	n := float64(len(idx))
	best := split{feature: -1}
	order := make([]int, len(idx))
	leftCounts := make([]float64, len(counts))
	rightCounts := make([]float64, len(counts))

	for _, f := range candidates {
		col := b.data.cols[f]
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })
		if col[order[0]] == col[order[len(order)-1]] {
			continue
		}

		for c := range leftCounts {
			leftCounts[c] = 0
		}
		copy(rightCounts, counts)
		for k := 0; k < len(order)-1; k++ {
			cls := b.data.y[order[k]]
			leftCounts[cls]++
			rightCounts[cls]--

			v, next := col[order[k]], col[order[k+1]]
			if v == next {
				continue
			}
			nLeft := k + 1
			nRight := len(order) - nLeft
			if nLeft < t.minSamplesLeaf || nRight < t.minSamplesLeaf {
				continue
			}
			nl, nr := float64(nLeft), float64(nRight)
			gain := parentImpurity - (nl/n)*t.impurity(leftCounts, nl) - (nr/n)*t.impurity(rightCounts, nr)
			if gain > best.gain+minGain {
				best = split{feature: f, threshold: v + (next-v)/2, gain: gain, nLeft: nLeft}
			}
		}
	}
	return best
}

func (t *DecisionTreeClassifier) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if t.criterion == "entropy" {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func (t *DecisionTreeClassifier) leaf(x []float64) *Node {
	node := &t.nodes[0]
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = &t.nodes[node.Left]
		} else {
			node = &t.nodes[node.Right]
		}
	}
	return node
}

// ProbaRow returns the class frequencies of the leaf reached by a single row.
// The returned slice is shared with the tree and must not be modified.
func (t *DecisionTreeClassifier) ProbaRow(x []float64) []float64 {
	return t.leaf(x).Value
}

// PredictProba returns class frequencies of the reached leaf, one column per class.
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, p := X.Dims()
	if err := t.state.CheckFeatures("PredictProba", p); err != nil {
		return nil, err
	}
	out := mat.NewDense(n, t.nClasses_, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, t.leaf(row).Value)
	}
	return out, nil
}

// Predict returns the majority class of the reached leaf.
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		bestC := 0
		for c := 1; c < t.nClasses_; c++ {
			if proba.At(i, c) > proba.At(i, bestC) {
				bestC = c
			}
		}
		out.Set(i, 0, t.classes_[bestC])
	}
	return out, nil
}

// Score returns the mean accuracy, or 0 when prediction fails.
func (t *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := t.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Classes returns the sorted class labels seen during fitting.
func (t *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), t.classes_...)
}

// GetFeatureImportances returns normalised impurity-decrease importances.
func (t *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), t.importances_...)
}

// FeatureImportances implements model.FeatureImporter.
func (t *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := t.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return t.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the deepest leaf.
func (t *DecisionTreeClassifier) GetDepth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	var depth func(i int) int
	depth = func(i int) int {
		node := t.nodes[i]
		if node.Leaf {
			return 0
		}
		l, r := depth(node.Left), depth(node.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return depth(0)
}

// GetNLeaves returns the number of leaves.
func (t *DecisionTreeClassifier) GetNLeaves() int {
	leaves := 0
	for _, node := range t.nodes {
		if node.Leaf {
			leaves++
		}
	}
	return leaves
}

// GetParams returns the hyperparameters.
func (t *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         t.criterion,
		"max_depth":         t.maxDepth,
		"min_samples_split": t.minSamplesSplit,
		"min_samples_leaf":  t.minSamplesLeaf,
		"max_features":      t.maxFeatures,
		"random_state":      t.randomState,
	}
}

// SetParams sets hyperparameters by name.
func (t *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			t.criterion, ok = value.(string)
		case "max_depth":
			t.maxDepth, ok = value.(int)
		case "min_samples_split":
			t.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			t.minSamplesLeaf, ok = value.(int)
		case "max_features":
			t.maxFeatures, ok = value.(int)
		case "random_state":
			t.randomState, ok = value.(uint64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return t.validateParams()
}

// Export returns the serialisable state of a fitted tree.
func (t *DecisionTreeClassifier) Export() (State, error) {
	if err := t.state.RequireFitted("Export"); err != nil {
		return State{}, err
	}
	nFeatures, _ := t.state.GetDimensions()
	return State{
		Classes:     t.Classes(),
		Nodes:       append([]Node(nil), t.nodes...),
		NFeatures:   nFeatures,
		Importances: t.GetFeatureImportances(),
	}, nil
}

// FromState rebuilds a fitted tree.
func FromState(s State) (*DecisionTreeClassifier, error) {
	if len(s.Nodes) == 0 || len(s.Classes) == 0 {
		return nil, errors.NewValidationError("state", "tree has no nodes", len(s.Nodes))
	}
	t := NewDecisionTreeClassifier()
	t.classes_ = append([]float64(nil), s.Classes...)
	t.nClasses_ = len(s.Classes)
	t.nodes = append([]Node(nil), s.Nodes...)
	t.importances_ = append([]float64(nil), s.Importances...)
	t.state.SetFitted(s.NFeatures, 0)
	return t, nil
}
