package tuning

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/sklearn/ensemble"
	"github.com/YuminosukeSato/amrpredict/sklearn/linear_model"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
)

// Model family names used in reports and bundles.
const (
	ModelLogistic = "logistic"
	ModelForest   = "random_forest"
)

// Hyperparameter names.
const (
	ParamPenalty = "penalty"
	ParamMixture = "mixture"
	ParamTrees   = "trees"
	ParamMtry    = "mtry_fraction"
	ParamMinLeaf = "min_leaf"
)

// LogisticCandidates builds one candidate per penalty, in the given order.
// A larger penalty is simpler.
func LogisticCandidates(penalties []float64, mixture float64) []Candidate {
	out := make([]Candidate, len(penalties))
	for i, lambda := range penalties {
		out[i] = Candidate{
			Index:      i,
			Params:     Params{{ParamPenalty, lambda}, {ParamMixture, mixture}},
			Complexity: []float64{-lambda},
		}
	}
	return out
}

// LogisticFactory returns a Factory for elastic-net logistic regression.
func LogisticFactory(maxIter int, tol float64) Factory {
	return func(p Params) (model.Classifier, error) {
		lambda, _ := p.Get(ParamPenalty)
		opts := append(logisticOptions(p, maxIter, tol), linear_model.WithPenalty(lambda))
		return linear_model.NewLogisticRegression(opts...), nil
	}
}

// LogisticPath returns a PathFactory that fits the penalties of each mixture
// as one warm-started regularisation path.
func LogisticPath(maxIter int, tol float64) PathFactory {
	return func(cands []Candidate, X, y mat.Matrix) ([]model.Classifier, []error) {
		out := make([]model.Classifier, len(cands))
		errs := make([]error, len(cands))

		groups := make(map[float64][]int)
		var mixtures []float64
		for i, c := range cands {
			mix := mixtureOf(c.Params)
			if _, ok := groups[mix]; !ok {
				mixtures = append(mixtures, mix)
			}
			groups[mix] = append(groups[mix], i)
		}

		for _, mix := range mixtures {
			idx := groups[mix]
			penalties := make([]float64, len(idx))
			for k, i := range idx {
				penalties[k], _ = cands[i].Params.Get(ParamPenalty)
			}
			base := linear_model.NewLogisticRegression(logisticOptions(cands[idx[0]].Params, maxIter, tol)...)
			fitted, pathErrs, err := base.FitPath(X, y, penalties)
			for k, i := range idx {
				switch {
				case err != nil:
					errs[i] = err
				case pathErrs[k] != nil:
					errs[i] = pathErrs[k]
				default:
					out[i] = fitted[k]
				}
			}
		}
		return out, errs
	}
}

func mixtureOf(p Params) float64 {
	if mixture, ok := p.Get(ParamMixture); ok {
		return mixture
	}
	return 1
}

func logisticOptions(p Params, maxIter int, tol float64) []linear_model.LogisticRegressionOption {
	opts := []linear_model.LogisticRegressionOption{linear_model.WithMixture(mixtureOf(p))}
	if maxIter > 0 {
		opts = append(opts, linear_model.WithMaxIter(maxIter))
	}
	if tol > 0 {
		opts = append(opts, linear_model.WithTol(tol))
	}
	return opts
}

// ForestCandidates builds one candidate per grid entry. Fewer trees, then a
// smaller mtry, then a larger minimum leaf size is simpler.
func ForestCandidates(grid []model_selection.ForestParams) []Candidate {
	out := make([]Candidate, len(grid))
	for i, fp := range grid {
		out[i] = Candidate{
			Index: i,
			Params: Params{
				{ParamTrees, float64(fp.Trees)},
				{ParamMtry, fp.MtryFraction},
				{ParamMinLeaf, float64(fp.MinLeaf)},
			},
			Complexity: []float64{float64(fp.Trees), fp.MtryFraction, -float64(fp.MinLeaf)},
		}
	}
	return out
}

// ForestFactory returns a Factory for random forests sharing depth, seed and
// tree-level parallelism.
func ForestFactory(maxDepth int, seed int64, jobs int) Factory {
	return func(p Params) (model.Classifier, error) {
		trees, _ := p.Get(ParamTrees)
		mtry, _ := p.Get(ParamMtry)
		minLeaf, ok := p.Get(ParamMinLeaf)
		if !ok {
			minLeaf = 1
		}
		return ensemble.NewRandomForestClassifier(
			ensemble.WithNEstimators(int(math.Round(trees))),
			ensemble.WithMaxFeaturesFraction(mtry),
			ensemble.WithMinSamplesLeaf(int(math.Round(minLeaf))),
			ensemble.WithMaxDepth(maxDepth),
			ensemble.WithRandomState(seed),
			ensemble.WithNJobs(jobs),
		), nil
	}
}
