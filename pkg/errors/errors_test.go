package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "amrpredict: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "amrpredict: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 8, 1)

	want := "amrpredict: Predict: dimension mismatch on axis 1 (features). Expected 10, got 8"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("LogisticRegression", "PredictProba")

	want := "amrpredict: LogisticRegression: this model is not fitted yet. Call Fit() before using PredictProba()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestNewConfigError(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "with key", key: "label.positive_class", want: "amrpredict: configuration error for 'label.positive_class': not present in data"},
		{name: "without key", key: "", want: "amrpredict: configuration error: not present in data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.key, "not present in data")
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			var cfgErr *ConfigError
			if !As(err, &cfgErr) {
				t.Fatal("Error should be castable to *ConfigError")
			}
			if cfgErr.Key != tt.key {
				t.Errorf("Key = %q, want %q", cfgErr.Key, tt.key)
			}
		})
	}
}

func TestNewFitError(t *testing.T) {
	cause := NewNumericalInstabilityError("irls_update", []float64{1, 2}, 7)
	err := NewFitError("logistic", "fit", 4, cause)

	if !strings.Contains(err.Error(), "logistic grid[4]: fit failed") {
		t.Errorf("unexpected message: %v", err)
	}

	var fitErr *FitError
	if !As(err, &fitErr) {
		t.Fatal("Error should be castable to *FitError")
	}
	if fitErr.GridIndex != 4 {
		t.Errorf("GridIndex = %d, want 4", fitErr.GridIndex)
	}

	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Error("FitError should unwrap to its cause")
	}
}

func TestSchemaMismatchError(t *testing.T) {
	tests := []struct {
		name       string
		missing    []string
		unexpected []string
		contains   []string
	}{
		{
			name:     "missing only",
			missing:  []string{"blaTEM-1"},
			contains: []string{"missing columns [blaTEM-1]"},
		},
		{
			name:       "both",
			missing:    []string{"a"},
			unexpected: []string{"b"},
			contains:   []string{"missing columns [a]", "unexpected columns [b]"},
		},
		{
			name:       "long list is truncated",
			unexpected: []string{"a", "b", "c", "d", "e", "f", "g"},
			contains:   []string{"(+2 more)"},
		},
		{
			name:     "order only",
			contains: []string{"column order differs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSchemaMismatchError("Recipe.Apply", tt.missing, tt.unexpected)
			for _, c := range tt.contains {
				if !strings.Contains(err.Error(), c) {
					t.Errorf("%q does not contain %q", err.Error(), c)
				}
			}
		})
	}
}

func TestWarnRouting(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewConvergenceWarning("irls", 100, ""))
	Warn(NewUndefinedMetricWarning("roc_auc", "only one class present", 0.5))

	if len(got) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "irls failed to converge after 100 iterations") {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "split stage %d", 1)
	if !Is(wrapped, ErrEmptyData) {
		t.Error("Is should find the sentinel through Wrapf")
	}
	if !strings.Contains(wrapped.Error(), "split stage 1") {
		t.Errorf("unexpected message: %v", wrapped)
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("ok", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckScalar("nan", zero()/zero(), 3); err == nil {
		t.Error("expected NaN to be reported")
	}
}

func zero() float64 { return 0 }
