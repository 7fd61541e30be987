package model_selection

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// Fold is one resample: Train rows fit the model, Test rows score it.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold implements stratified k-fold cross-validation.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split distributes every class level round-robin across the folds so each
// fold keeps the parent class proportions. Every level needs at least NSplits
// members, otherwise some fold would miss a class.
func (skf *StratifiedKFold) Split(y []float64) ([]Fold, error) {
	levels, members := groupByLevel(y)
	for _, level := range levels {
		if n := len(members[level]); n < skf.NSplits {
			return nil, errors.NewConfigErrorf("split.cv_folds",
				"class level %g has %d member(s), fewer than %d folds", level, n, skf.NSplits)
		}
	}

	r := rand.New(rand.NewPCG(uint64(skf.RandomSeed), uint64(skf.RandomSeed)))
	testOf := make([]int, len(y))
	for _, level := range levels {
		indices := members[level]
		if skf.Shuffle {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for k, idx := range indices {
			testOf[idx] = k % skf.NSplits
		}
	}

	folds := make([]Fold, skf.NSplits)
	for i, f := range testOf {
		for k := range folds {
			if k == f {
				folds[k].Test = append(folds[k].Test, i)
			} else {
				folds[k].Train = append(folds[k].Train, i)
			}
		}
	}
	for k := range folds {
		sort.Ints(folds[k].Train)
		sort.Ints(folds[k].Test)
	}
	return folds, nil
}
