package model_selection

import (
	"math"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// LogSpace returns levels values 10^e for e evenly spaced over [minExp, maxExp],
// in ascending order.
func LogSpace(minExp, maxExp float64, levels int) ([]float64, error) {
	if levels < 1 {
		return nil, errors.NewConfigErrorf("logistic.penalty_grid.levels", "must be >= 1, got %d", levels)
	}
	if minExp > maxExp {
		return nil, errors.NewConfigErrorf("logistic.penalty_grid", "min_exp %g > max_exp %g", minExp, maxExp)
	}
	out := make([]float64, levels)
	if levels == 1 {
		out[0] = math.Pow(10, minExp)
		return out, nil
	}
	step := (maxExp - minExp) / float64(levels-1)
	for i := range out {
		out[i] = math.Pow(10, minExp+step*float64(i))
	}
	return out, nil
}

// ForestParams is one random-forest grid entry.
type ForestParams struct {
	Trees        int     `json:"trees" yaml:"trees"`
	MtryFraction float64 `json:"mtry_fraction" yaml:"mtry_fraction"`
	MinLeaf      int     `json:"min_leaf" yaml:"min_leaf"`
}

// ForestGrid returns the Cartesian product of the three axes. Trees vary
// slowest and min leaf size fastest.
func ForestGrid(trees []int, mtryFractions []float64, minLeafSizes []int) ([]ForestParams, error) {
	if len(trees) == 0 || len(mtryFractions) == 0 || len(minLeafSizes) == 0 {
		return nil, errors.NewConfigError("forest", "tree counts, mtry fractions and min leaf sizes must all be non-empty")
	}
	for _, t := range trees {
		if t < 1 {
			return nil, errors.NewConfigErrorf("forest.trees", "tree count must be >= 1, got %d", t)
		}
	}
	for _, m := range mtryFractions {
		if !(m > 0 && m <= 1) {
			return nil, errors.NewConfigErrorf("forest.mtry_fractions", "fraction must be in (0, 1], got %g", m)
		}
	}
	for _, l := range minLeafSizes {
		if l < 1 {
			return nil, errors.NewConfigErrorf("forest.min_leaf_sizes", "min leaf size must be >= 1, got %d", l)
		}
	}

	out := make([]ForestParams, 0, len(trees)*len(mtryFractions)*len(minLeafSizes))
	for _, t := range trees {
		for _, m := range mtryFractions {
			for _, l := range minLeafSizes {
				out = append(out, ForestParams{Trees: t, MtryFraction: m, MinLeaf: l})
			}
		}
	}
	return out, nil
}
