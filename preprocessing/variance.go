package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// ZeroVarianceFilter は訓練データで値が1種類しかない列を取り除く
type ZeroVarianceFilter struct {
	State *model.StateManager

	// Keep は残す列のインデックス（昇順）
	Keep []int

	// Dropped は取り除いた列のインデックス（昇順）
	Dropped []int
}

// NewZeroVarianceFilter creates an unfitted filter.
func NewZeroVarianceFilter() *ZeroVarianceFilter {
	return &ZeroVarianceFilter{State: model.NewStateManager("ZeroVarianceFilter")}
}

// Fit records which columns have a single distinct value in X.
func (f *ZeroVarianceFilter) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("ZeroVarianceFilter.Fit", "empty data", errors.ErrEmptyData)
	}

	f.Keep = f.Keep[:0]
	f.Dropped = f.Dropped[:0]
	for j := 0; j < c; j++ {
		first := X.At(0, j)
		constant := true
		for i := 1; i < r; i++ {
			if X.At(i, j) != first {
				constant = false
				break
			}
		}
		if constant {
			f.Dropped = append(f.Dropped, j)
		} else {
			f.Keep = append(f.Keep, j)
		}
	}

	f.State.SetFitted(c, r)
	return nil
}

// Transform returns the kept columns of X.
func (f *ZeroVarianceFilter) Transform(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	if err := f.State.CheckFeatures("Transform", c); err != nil {
		return nil, err
	}
	if len(f.Keep) == 0 {
		return nil, errors.NewModelError("ZeroVarianceFilter.Transform", "every column was dropped", errors.ErrEmptyData)
	}

	out := mat.NewDense(r, len(f.Keep), nil)
	for i := 0; i < r; i++ {
		for k, j := range f.Keep {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out, nil
}

// FitTransform fits the filter on X and returns the kept columns.
func (f *ZeroVarianceFilter) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}
	return f.Transform(X)
}
