package model_selection

import (
	"math"
	"testing"
)

func TestLogSpace(t *testing.T) {
	got, err := LogSpace(-4, -1, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1e-4, 1e-3, 1e-2, 1e-1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-15 {
			t.Errorf("LogSpace[%d] = %g, want %g", i, got[i], want[i])
		}
	}

	single, _ := LogSpace(-2, 0, 1)
	if len(single) != 1 || math.Abs(single[0]-0.01) > 1e-15 {
		t.Errorf("single level = %v", single)
	}

	if _, err := LogSpace(0, -1, 3); err == nil {
		t.Error("expected error when min_exp > max_exp")
	}
	if _, err := LogSpace(-1, 0, 0); err == nil {
		t.Error("expected error for zero levels")
	}
}

func TestForestGrid(t *testing.T) {
	grid, err := ForestGrid([]int{100, 500}, []float64{0.1, 0.3}, []int{1, 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(grid))
	}
	if grid[0] != (ForestParams{Trees: 100, MtryFraction: 0.1, MinLeaf: 1}) {
		t.Errorf("first entry = %+v", grid[0])
	}
	if grid[1] != (ForestParams{Trees: 100, MtryFraction: 0.1, MinLeaf: 5}) {
		t.Errorf("min leaf should vary fastest, got %+v", grid[1])
	}
	if grid[7] != (ForestParams{Trees: 500, MtryFraction: 0.3, MinLeaf: 5}) {
		t.Errorf("last entry = %+v", grid[7])
	}

	bad := []struct {
		name  string
		trees []int
		mtry  []float64
		leaf  []int
	}{
		{"empty axis", nil, []float64{0.5}, []int{1}},
		{"zero trees", []int{0}, []float64{0.5}, []int{1}},
		{"mtry above one", []int{10}, []float64{1.5}, []int{1}},
		{"zero leaf", []int{10}, []float64{0.5}, []int{0}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ForestGrid(tt.trees, tt.mtry, tt.leaf); err == nil {
				t.Error("expected error")
			}
		})
	}
}
