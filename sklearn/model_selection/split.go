// Package model_selection partitions samples into stratified train, validation
// and test subsets and builds hyperparameter grids.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// Split is a two-way partition of row indices into a parent set.
// Train and Test are sorted, disjoint and together cover every parent row.
type Split struct {
	Train      []int   `json:"train" yaml:"train"`
	Test       []int   `json:"test" yaml:"test"`
	Seed       int64   `json:"seed" yaml:"seed"`
	Proportion float64 `json:"proportion" yaml:"proportion"`
}

// ThreeWaySplit partitions a parent set into train, validation and test rows.
// Validation is empty when no validation fraction was requested.
type ThreeWaySplit struct {
	Train      []int `json:"train" yaml:"train"`
	Validation []int `json:"validation" yaml:"validation"`
	Test       []int `json:"test" yaml:"test"`

	TestSeed           int64   `json:"test_seed" yaml:"test_seed"`
	ValidationSeed     int64   `json:"validation_seed" yaml:"validation_seed"`
	TestFraction       float64 `json:"test_fraction" yaml:"test_fraction"`
	ValidationFraction float64 `json:"validation_fraction" yaml:"validation_fraction"`
}

// Other returns the rows not held out for testing (train plus validation), sorted.
func (s ThreeWaySplit) Other() []int {
	out := make([]int, 0, len(s.Train)+len(s.Validation))
	out = append(out, s.Train...)
	out = append(out, s.Validation...)
	sort.Ints(out)
	return out
}

// StratifiedSplit holds out a fraction heldOut of every class level as the
// test subset. Each level is shuffled with a PCG source seeded by seed and
// contributes round(heldOut*n) rows, clamped so that both subsets receive at
// least one member of the level.
//
// パラメータ:
//   - y: クラスラベル（層化キー）
//   - heldOut: テスト側に回す割合 (0, 1)
//   - seed: 乱数シード（再現性のため Split に記録される）
//
// 戻り値:
//   - Split: ソート済みの Train/Test インデックス
//   - error: 割合が範囲外、またはメンバーが2未満のレベルがある場合の ConfigError
func StratifiedSplit(y []float64, heldOut float64, seed int64) (Split, error) {
	if !(heldOut > 0 && heldOut < 1) {
		return Split{}, errors.NewConfigErrorf("split.test_fraction", "proportion must be in (0, 1), got %g", heldOut)
	}
	if len(y) == 0 {
		return Split{}, errors.Wrap(errors.ErrEmptyData, "stratified split")
	}

	levels, members := groupByLevel(y)
	for _, level := range levels {
		if n := len(members[level]); n < 2 {
			return Split{}, errors.NewConfigErrorf("split",
				"class level %g has %d member(s); at least 2 are needed to appear in both subsets", level, n)
		}
	}

	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	split := Split{
		Train:      make([]int, 0, len(y)),
		Test:       make([]int, 0, int(float64(len(y))*heldOut)+len(levels)),
		Seed:       seed,
		Proportion: heldOut,
	}
	for _, level := range levels {
		indices := members[level]
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		k := heldOutCount(len(indices), heldOut)
		split.Test = append(split.Test, indices[:k]...)
		split.Train = append(split.Train, indices[k:]...)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}

// TrainValidationTestSplit applies StratifiedSplit twice: first the test
// subset is held out with testSeed, then the validation subset is drawn from
// the remaining rows with validSeed. validFrac == 0 skips the second split.
func TrainValidationTestSplit(y []float64, testFrac, validFrac float64, testSeed, validSeed int64) (ThreeWaySplit, error) {
	if validFrac < 0 || validFrac >= 1 {
		return ThreeWaySplit{}, errors.NewConfigErrorf("split.validation_fraction", "proportion must be in [0, 1), got %g", validFrac)
	}
	outer, err := StratifiedSplit(y, testFrac, testSeed)
	if err != nil {
		return ThreeWaySplit{}, err
	}
	result := ThreeWaySplit{
		Train:              outer.Train,
		Test:               outer.Test,
		TestSeed:           testSeed,
		ValidationSeed:     validSeed,
		TestFraction:       testFrac,
		ValidationFraction: validFrac,
	}
	if validFrac == 0 {
		return result, nil
	}

	inner, err := StratifiedSplit(Take(y, outer.Train), validFrac, validSeed)
	if err != nil {
		return ThreeWaySplit{}, errors.Wrap(err, "validation split")
	}
	result.Train = remap(inner.Train, outer.Train)
	result.Validation = remap(inner.Test, outer.Train)
	return result, nil
}

// Take returns y[idx[0]], y[idx[1]], ...
func Take(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}

// TakeRows copies the given rows of X into a new matrix.
func TakeRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

func heldOutCount(n int, p float64) int {
	k := int(math.Round(p * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}
	return k
}

// groupByLevel returns the sorted distinct labels and the row indices per label.
func groupByLevel(y []float64) ([]float64, map[float64][]int) {
	members := make(map[float64][]int)
	for i, v := range y {
		members[v] = append(members[v], i)
	}
	levels := make([]float64, 0, len(members))
	for level := range members {
		levels = append(levels, level)
	}
	sort.Float64s(levels)
	return levels, members
}

// remap translates indices into a subset back to indices into the parent.
// The subset is sorted, so the result stays sorted.
func remap(sub, parent []int) []int {
	out := make([]int, len(sub))
	for i, s := range sub {
		out[i] = parent[s]
	}
	return out
}
