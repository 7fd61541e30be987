package dataset

import (
	"sort"
	"strings"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// DefaultPositiveClass is the phenotype treated as the positive class.
const DefaultPositiveClass = "Resistant"

// Binarize collapses phenotype labels to 1 (positive) and 0 (everything else).
// Comparison is case-sensitive after trimming whitespace. A positive class
// that never occurs is a configuration error.
func Binarize(labels []string, positive string) ([]float64, error) {
	positive = strings.TrimSpace(positive)
	if positive == "" {
		return nil, errors.NewConfigError("label.positive_class", "positive class must not be empty")
	}
	y := make([]float64, len(labels))
	found := false
	for i, l := range labels {
		if strings.TrimSpace(l) == positive {
			y[i] = 1
			found = true
		}
	}
	if !found {
		return nil, errors.NewConfigErrorf("label.positive_class",
			"positive class %q does not occur in the label column (levels: %v)", positive, Levels(labels))
	}
	return y, nil
}

// Levels returns the sorted distinct labels.
func Levels(labels []string) []string {
	set := make(map[string]struct{})
	for _, l := range labels {
		set[strings.TrimSpace(l)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// ClassCount is the size of one class level.
type ClassCount struct {
	Label      float64 `json:"label" yaml:"label"`
	Count      int     `json:"count" yaml:"count"`
	Proportion float64 `json:"proportion" yaml:"proportion"`
}

// ClassBalance returns counts and proportions per class level, ordered by label.
func ClassBalance(y []float64) []ClassCount {
	counts := make(map[float64]int)
	for _, v := range y {
		counts[v]++
	}
	out := make([]ClassCount, 0, len(counts))
	for label, c := range counts {
		out = append(out, ClassCount{
			Label:      label,
			Count:      c,
			Proportion: float64(c) / float64(len(y)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Proportion returns the share of samples carrying label, or 0 for empty input.
func Proportion(y []float64, label float64) float64 {
	if len(y) == 0 {
		return 0
	}
	n := 0
	for _, v := range y {
		if v == label {
			n++
		}
	}
	return float64(n) / float64(len(y))
}
