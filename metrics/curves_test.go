package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestROCCurve(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	score := mat.NewVecDense(4, []float64{0.1, 0.4, 0.35, 0.8})

	points, err := ROCCurve(yTrue, score, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []CurvePoint{
		{Threshold: math.Inf(1), X: 0, Y: 0},
		{Threshold: 0.8, X: 0, Y: 0.5},
		{Threshold: 0.4, X: 0.5, Y: 0.5},
		{Threshold: 0.35, X: 0.5, Y: 1},
		{Threshold: 0.1, X: 1, Y: 1},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, points[i], want[i])
		}
	}
	if area := Trapezoid(points); math.Abs(area-0.75) > 1e-12 {
		t.Errorf("area under ROC curve = %v, want 0.75", area)
	}
}

func TestPrecisionRecallCurve(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	score := mat.NewVecDense(4, []float64{0.1, 0.4, 0.35, 0.8})

	points, err := PrecisionRecallCurve(yTrue, score, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []CurvePoint{
		{X: 0, Y: 1},
		{X: 0.5, Y: 1},
		{X: 0.5, Y: 0.5},
		{X: 1, Y: 2.0 / 3},
		{X: 1, Y: 0.5},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if math.Abs(points[i].X-want[i].X) > 1e-12 || math.Abs(points[i].Y-want[i].Y) > 1e-12 {
			t.Errorf("point %d = %+v, want (%v, %v)", i, points[i], want[i].X, want[i].Y)
		}
	}
}

func TestPRAUC(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		score []float64
		want  float64
	}{
		{
			name:  "Perfect ranking",
			yTrue: []float64{1, 1, 0, 0},
			score: []float64{0.9, 0.8, 0.2, 0.1},
			want:  1.0,
		},
		{
			name:  "Typical case",
			yTrue: []float64{0, 0, 1, 1},
			score: []float64{0.1, 0.4, 0.35, 0.8},
			want:  0.7916666666666666,
		},
		{
			name:  "All tied",
			yTrue: []float64{1, 0, 1, 0},
			score: []float64{0.5, 0.5, 0.5, 0.5},
			want:  0.75, // (0,1) -> (1,0.5)
		},
		{
			name:  "No positives",
			yTrue: []float64{0, 0, 0},
			score: []float64{0.1, 0.2, 0.3},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PRAUC(mat.NewVecDense(len(tt.yTrue), tt.yTrue), mat.NewVecDense(len(tt.score), tt.score), 1)
			if err != nil {
				t.Fatalf("PRAUC() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PRAUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPRAUC_DependsOnPositiveClass(t *testing.T) {
	y, s := uninformative(20000, 0.2, 11)
	tests := []struct {
		positive float64
		lo, hi   float64
	}{
		// uninformative scores give the prevalence of the chosen class
		{positive: 1, lo: 0.15, hi: 0.25},
		{positive: 0, lo: 0.75, hi: 0.85},
	}
	var got []float64
	for _, tt := range tests {
		pr, err := PRAUC(y, s, tt.positive)
		if err != nil {
			t.Fatal(err)
		}
		if pr < tt.lo || pr > tt.hi {
			t.Errorf("PRAUC(pos=%v) = %v, want in [%v, %v]", tt.positive, pr, tt.lo, tt.hi)
		}
		got = append(got, pr)
	}
	if math.Abs(got[0]-got[1]) < 0.5 {
		t.Errorf("swapping the positive class barely moved PR-AUC: %v vs %v", got[0], got[1])
	}
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect ranking",
			yTrue: []float64{1, 1, 1, 0, 0},
			yPred: []float64{5, 4, 3, 2, 1},
			want:  1.0,
		},
		{
			name:  "Worst ranking",
			yTrue: []float64{1, 1, 1, 0, 0},
			yPred: []float64{1, 2, 3, 4, 5},
			want:  0.478, // (1/3 + 2/4 + 3/5) / 3
		},
		{
			name:  "Mixed ranking",
			yTrue: []float64{1, 0, 1, 0, 1},
			yPred: []float64{0.9, 0.8, 0.7, 0.6, 0.5},
			want:  0.756, // (1/1 + 2/3 + 3/5) / 3
		},
		{
			name:  "No relevant items",
			yTrue: []float64{0, 0, 0, 0},
			yPred: []float64{1, 2, 3, 4},
			want:  0.0,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0.5},
			wantErr: true,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := AveragePrecision(yTrue, yPred, 1)
			if (err != nil) != tt.wantErr {
				t.Errorf("AveragePrecision() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 0.01 {
				t.Errorf("AveragePrecision() = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkAveragePrecision(b *testing.B) {
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			yTrue[i] = 1
		}
		yPred[i] = float64(n - i)
	}
	yTrueVec := mat.NewVecDense(n, yTrue)
	yPredVec := mat.NewVecDense(n, yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AveragePrecision(yTrueVec, yPredVec, 1)
	}
}
