// Package importance ranks predictors by fitted-model importance.
//
// Logistic models are ranked by absolute coefficient on the standardised
// scale and forests by mean impurity decrease. The two kinds are never mixed
// in one ranking.
package importance

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/sklearn/linear_model"
)

// Kind identifies how a score was computed.
type Kind string

const (
	Coefficient Kind = "coefficient"
	Impurity    Kind = "impurity"
)

// Importance is one ranked predictor.
type Importance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Score   float64 `json:"score" yaml:"score"`
	Kind    Kind    `json:"kind" yaml:"kind"`
	// Sign of the coefficient (+1 raises the resistance probability, -1
	// lowers it, 0 for an exact zero). Always 0 for impurity scores.
	Sign int `json:"sign" yaml:"sign"`
}

// FromLogistic ranks the coefficients of a fitted logistic model by |β|.
func FromLogistic(m *linear_model.LogisticRegression, names []string) ([]Importance, error) {
	if m == nil {
		return nil, errors.NewValueError("importance.FromLogistic", "nil model")
	}
	coef := m.Coef()
	if coef == nil {
		return nil, errors.NewNotFittedError("LogisticRegression", "Coef")
	}
	if len(coef) != len(names) {
		return nil, errors.NewDimensionError("importance.FromLogistic", len(coef), len(names), 0)
	}
	out := make([]Importance, len(coef))
	for j, b := range coef {
		sign := 0
		switch {
		case b > 0:
			sign = 1
		case b < 0:
			sign = -1
		}
		out[j] = Importance{Feature: names[j], Score: math.Abs(b), Kind: Coefficient, Sign: sign}
	}
	sortImportances(out)
	return out, nil
}

// FromForest ranks impurity importances of any model.FeatureImporter.
func FromForest(m model.FeatureImporter, names []string) ([]Importance, error) {
	if m == nil {
		return nil, errors.NewValueError("importance.FromForest", "nil model")
	}
	scores, err := m.FeatureImportances()
	if err != nil {
		return nil, err
	}
	if len(scores) != len(names) {
		return nil, errors.NewDimensionError("importance.FromForest", len(scores), len(names), 0)
	}
	out := make([]Importance, len(scores))
	for j, s := range scores {
		out[j] = Importance{Feature: names[j], Score: s, Kind: Impurity}
	}
	sortImportances(out)
	return out, nil
}

// sortImportances orders by descending score, ties by feature name.
func sortImportances(list []Importance) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Feature < list[j].Feature
	})
}

// TopK returns the first min(k, len(list)) entries of a ranked list; k <= 0
// returns every entry. The input is not modified. Mixed kinds are rejected.
func TopK(list []Importance, k int) ([]Importance, error) {
	for _, imp := range list[min(1, len(list)):] {
		if imp.Kind != list[0].Kind {
			return nil, errors.NewValueError("importance.TopK", "cannot rank coefficient and impurity scores together")
		}
	}
	ranked := append([]Importance(nil), list...)
	sortImportances(ranked)
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}
