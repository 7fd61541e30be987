// Package ensemble implements a bagged random-forest classifier on top of
// sklearn/tree.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/core/parallel"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/sklearn/tree"
)

const modelName = "RandomForestClassifier"

// minParallelTrees 以下の本数では木を逐次に学習します。
const minParallelTrees = 4

// RandomForestClassifier はブートストラップ標本で学習した決定木の集合です。
// 確率は各木の葉のクラス頻度の平均です。
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	maxFeaturesFrac float64 // 0 means floor(sqrt(p))
	minSamplesLeaf  int
	maxDepth        int
	randomState     int64
	nJobs           int

	trees        []*tree.DecisionTreeClassifier
	classes_     []float64
	importances_ []float64
	oobScore_    float64
	mtry_        int
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithMaxFeaturesFraction sets mtry as a fraction of the predictors. At least
// one feature is always examined.
func WithMaxFeaturesFraction(f float64) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeaturesFrac = f }
}

// WithMinSamplesLeaf sets the minimum leaf size of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxDepth limits the depth of every tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithRandomState seeds bootstrap and feature sampling.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of goroutines used to grow trees. <= 0 uses every CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest of 500 trees with leaf size 1,
// the classification defaults of ranger.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:          model.NewStateManager(modelName),
		nEstimators:    500,
		minSamplesLeaf: 1,
		randomState:    42,
		oobScore_:      math.NaN(),
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validateParams() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	case rf.maxFeaturesFrac < 0 || rf.maxFeaturesFrac > 1:
		return errors.NewValidationError("max_features_fraction", "must be in [0, 1]", rf.maxFeaturesFrac)
	case rf.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", rf.minSamplesLeaf)
	case rf.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", rf.maxDepth)
	}
	return nil
}

// Mtry returns the number of features examined per split for p predictors.
func (rf *RandomForestClassifier) Mtry(p int) int {
	var m int
	if rf.maxFeaturesFrac == 0 {
		m = int(math.Sqrt(float64(p)))
	} else {
		m = int(math.Floor(rf.maxFeaturesFrac * float64(p)))
	}
	if m < 1 {
		m = 1
	}
	if m > p {
		m = p
	}
	return m
}

// Fit grows the forest. y must contain exactly two classes.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")

	if err := rf.validateParams(); err != nil {
		return err
	}
	data, err := tree.NewData(X, y)
	if err != nil {
		return err
	}
	if len(data.Classes()) != 2 {
		return errors.NewValueError("RandomForestClassifier.Fit",
			fmt.Sprintf("binary labels required, got %d classes", len(data.Classes())))
	}

	n, p := data.NSamples(), data.NFeatures()
	rf.mtry_ = rf.Mtry(p)
	rf.classes_ = append([]float64(nil), data.Classes()...)

	// 木ごとの乱数種とブートストラップ標本は逐次に引くので、並列数に依らず結果が決まる
	rng := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	seeds := make([]uint64, rf.nEstimators)
	samples := make([][]int, rf.nEstimators)
	for t := range samples {
		seeds[t] = rng.Uint64()
		samples[t] = make([]int, n)
		for i := range samples[t] {
			samples[t][i] = rng.IntN(n)
		}
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)
	parallel.ParallelizeWithThreshold(rf.nEstimators, minParallelTrees, rf.nJobs, func(start, end int) {
		for t := start; t < end; t++ {
			errs[t] = errors.SafeExecute(fmt.Sprintf("tree %d", t), func() error {
				dt := tree.NewDecisionTreeClassifier(
					tree.WithMaxDepth(rf.maxDepth),
					tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
					tree.WithMaxFeatures(rf.mtry_),
					tree.WithRandomState(seeds[t]),
				)
				trees[t] = dt
				return dt.FitData(data, samples[t])
			})
		}
	})
	for t, e := range errs {
		if e != nil {
			return errors.Wrapf(e, "tree %d", t)
		}
	}
	rf.trees = trees

	rf.importances_ = make([]float64, p)
	var depth, leaves float64
	for _, dt := range trees {
		for j, v := range dt.GetFeatureImportances() {
			rf.importances_[j] += v / float64(len(trees))
		}
		depth += float64(dt.GetDepth()) / float64(len(trees))
		leaves += float64(dt.GetNLeaves()) / float64(len(trees))
	}

	rf.state.SetFitted(p, n)
	rf.oobScore_ = rf.outOfBag(X, y, samples)

	log.GetLoggerWithName(modelName).Debug("Forest grown",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		"trees", rf.nEstimators,
		"mtry", rf.mtry_,
		"oob_roc_auc", rf.oobScore_,
		"mean_depth", depth,
		"mean_leaves", leaves,
	)
	return nil
}

// outOfBag scores every row with the trees whose bootstrap sample missed it.
// Rows that were in every sample are skipped. Returns NaN when no row is
// out of bag for any tree.
func (rf *RandomForestClassifier) outOfBag(X, y mat.Matrix, samples [][]int) float64 {
	n, p := X.Dims()
	sum := make([]float64, n)
	votes := make([]int, n)
	row := make([]float64, p)
	inBag := make([]bool, n)

	for t, dt := range rf.trees {
		for i := range inBag {
			inBag[i] = false
		}
		for _, i := range samples[t] {
			inBag[i] = true
		}
		for i := 0; i < n; i++ {
			if inBag[i] {
				continue
			}
			mat.Row(row, i, X)
			sum[i] += dt.ProbaRow(row)[1]
			votes[i]++
		}
	}

	var truth, score []float64
	for i := 0; i < n; i++ {
		if votes[i] > 0 {
			truth = append(truth, y.At(i, 0))
			score = append(score, sum[i]/float64(votes[i]))
		}
	}
	if len(truth) == 0 {
		return math.NaN()
	}
	auc, err := metrics.ROCAUC(mat.NewVecDense(len(truth), truth), mat.NewVecDense(len(score), score), rf.classes_[1])
	if err != nil {
		return math.NaN()
	}
	return auc
}

// PredictProba は各木の葉のクラス頻度を平均した n×2 行列を返します。
// 列はソート済みのクラス順です。
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, p := X.Dims()
	if err := rf.state.CheckFeatures("PredictProba", p); err != nil {
		return nil, err
	}
	out := mat.NewDense(n, len(rf.classes_), nil)
	for _, dt := range rf.trees {
		proba, err := dt.PredictProba(X)
		if err != nil {
			return nil, err
		}
		out.Add(out, proba)
	}
	out.Scale(1/float64(len(rf.trees)), out)
	return out, nil
}

// Predict returns the class with the higher averaged probability; ties go to
// the positive (larger) label.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if proba.At(i, 1) >= proba.At(i, 0) {
			out.Set(i, 0, rf.classes_[1])
		} else {
			out.Set(i, 0, rf.classes_[0])
		}
	}
	return out, nil
}

// FeatureImportances returns the mean of the per-tree normalised impurity
// importances.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.importances_...), nil
}

// OOBScore returns the out-of-bag ROC-AUC, NaN if it could not be computed.
func (rf *RandomForestClassifier) OOBScore() float64 { return rf.oobScore_ }

// NEstimators returns the number of fitted trees.
func (rf *RandomForestClassifier) NEstimators() int { return len(rf.trees) }

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":          rf.nEstimators,
		"max_features_fraction": rf.maxFeaturesFrac,
		"min_samples_leaf":      rf.minSamplesLeaf,
		"max_depth":             rf.maxDepth,
		"random_state":          rf.randomState,
		"n_jobs":                rf.nJobs,
	}
}

// ForestState is the gob-friendly snapshot of a fitted forest.
type ForestState struct {
	Params      map[string]float64
	Classes     []float64
	NFeatures   int
	Importances []float64
	OOBScore    float64
	Trees       []tree.State
}

// Export snapshots the fitted forest.
func (rf *RandomForestClassifier) Export() (*ForestState, error) {
	if err := rf.state.RequireFitted("Export"); err != nil {
		return nil, err
	}
	nFeatures, _ := rf.state.GetDimensions()
	s := &ForestState{
		Params: map[string]float64{
			"n_estimators":          float64(rf.nEstimators),
			"max_features_fraction": rf.maxFeaturesFrac,
			"min_samples_leaf":      float64(rf.minSamplesLeaf),
			"max_depth":             float64(rf.maxDepth),
			"random_state":          float64(rf.randomState),
		},
		Classes:     append([]float64(nil), rf.classes_...),
		NFeatures:   nFeatures,
		Importances: append([]float64(nil), rf.importances_...),
		OOBScore:    rf.oobScore_,
		Trees:       make([]tree.State, len(rf.trees)),
	}
	for i, dt := range rf.trees {
		ts, err := dt.Export()
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		s.Trees[i] = ts
	}
	return s, nil
}

// FromState rebuilds a fitted forest from a snapshot.
func FromState(s *ForestState) (*RandomForestClassifier, error) {
	if s == nil || len(s.Trees) == 0 {
		return nil, errors.NewValidationError("forest", "snapshot has no trees", nil)
	}
	if len(s.Classes) != 2 {
		return nil, errors.NewValidationError("forest.classes", "binary forest expected", s.Classes)
	}
	rf := NewRandomForestClassifier(
		WithNEstimators(int(s.Params["n_estimators"])),
		WithMaxFeaturesFraction(s.Params["max_features_fraction"]),
		WithMinSamplesLeaf(int(s.Params["min_samples_leaf"])),
		WithMaxDepth(int(s.Params["max_depth"])),
		WithRandomState(int64(s.Params["random_state"])),
	)
	rf.trees = make([]*tree.DecisionTreeClassifier, len(s.Trees))
	for i, ts := range s.Trees {
		dt, err := tree.FromState(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		rf.trees[i] = dt
	}
	rf.classes_ = append([]float64(nil), s.Classes...)
	rf.importances_ = append([]float64(nil), s.Importances...)
	rf.oobScore_ = s.OOBScore
	rf.state.SetFitted(s.NFeatures, 0)
	return rf, nil
}
