// Package tuning evaluates hyperparameter grids on resamples, selects the best
// entry and refits it for the final test-set evaluation.
package tuning

import (
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
)

// Param is one named hyperparameter value.
type Param struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Params is an ordered set of hyperparameters. Order is kept for display.
type Params []Param

// Get returns the value of name.
func (p Params) Get(name string) (float64, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

// Names returns the parameter names in order.
func (p Params) Names() []string {
	out := make([]string, len(p))
	for i, kv := range p {
		out[i] = kv.Name
	}
	return out
}

// Map returns the parameters as a map, for serialisation.
func (p Params) Map() map[string]float64 {
	out := make(map[string]float64, len(p))
	for _, kv := range p {
		out[kv.Name] = kv.Value
	}
	return out
}

func (p Params) String() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Name + "=" + strconv.FormatFloat(kv.Value, 'g', 6, 64)
	}
	return strings.Join(parts, ", ")
}

// Candidate is one grid entry. Complexity orders candidates lexicographically
// from simplest (smallest) to most complex and breaks metric ties.
type Candidate struct {
	Index      int       `json:"index" yaml:"index"`
	Params     Params    `json:"params" yaml:"params"`
	Complexity []float64 `json:"-" yaml:"-"`
}

// simpler reports whether a is strictly simpler than b.
func simpler(a, b Candidate) bool {
	for i := 0; i < len(a.Complexity) && i < len(b.Complexity); i++ {
		if a.Complexity[i] != b.Complexity[i] {
			return a.Complexity[i] < b.Complexity[i]
		}
	}
	return false
}

// Factory builds an unfitted classifier for a candidate's parameters.
type Factory func(Params) (model.Classifier, error)

// PathFactory fits every candidate on one training set in a single call. It
// returns one model and one error per candidate, in candidate order; a
// candidate with an error has a nil model.
type PathFactory func(cands []Candidate, X, y mat.Matrix) ([]model.Classifier, []error)

// Resample is one analysis/assessment pair, already transformed by a recipe
// fitted on the analysis rows.
type Resample struct {
	ID     string
	TrainX *mat.Dense
	TrainY []float64
	TestX  *mat.Dense
	TestY  []float64
}
