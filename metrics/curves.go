package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// CurvePoint is one point of a ROC or precision-recall curve.
// For ROC, X is the false positive rate and Y the true positive rate;
// for PR, X is recall and Y precision.
type CurvePoint struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
}

// cumulative holds the true/false positive counts obtained when every score
// at or above Threshold is called positive, one entry per distinct score.
type cumulative struct {
	threshold float64
	tp, fp    int
}

func sweep(op string, yTrue, score *mat.VecDense, positive float64) ([]cumulative, int, int, error) {
	n, err := checkPair(op, yTrue, score)
	if err != nil {
		return nil, 0, 0, err
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return score.AtVec(order[a]) > score.AtVec(order[b]) })

	var steps []cumulative
	tp, fp := 0, 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(order[i]) == positive {
			tp++
		} else {
			fp++
		}
		if i == n-1 || score.AtVec(order[i+1]) != score.AtVec(order[i]) {
			steps = append(steps, cumulative{threshold: score.AtVec(order[i]), tp: tp, fp: fp})
		}
	}
	return steps, tp, fp, nil
}

// ROCCurve returns the ROC curve from (0,0) at threshold +Inf to (1,1).
func ROCCurve(yTrue, score *mat.VecDense, positive float64) ([]CurvePoint, error) {
	steps, nPos, nNeg, err := sweep("ROCCurve", yTrue, score, positive)
	if err != nil {
		return nil, err
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("ROCCurve", "only one class present in y_true", math.NaN()))
	}
	points := make([]CurvePoint, 0, len(steps)+1)
	points = append(points, CurvePoint{Threshold: math.Inf(1)})
	for _, s := range steps {
		points = append(points, CurvePoint{
			Threshold: s.threshold,
			X:         errors.SafeDivide(float64(s.fp), float64(nNeg), 0),
			Y:         errors.SafeDivide(float64(s.tp), float64(nPos), 0),
		})
	}
	return points, nil
}

// PrecisionRecallCurve returns (recall, precision) points in order of
// decreasing threshold, starting at (0, 1).
func PrecisionRecallCurve(yTrue, score *mat.VecDense, positive float64) ([]CurvePoint, error) {
	steps, nPos, _, err := sweep("PrecisionRecallCurve", yTrue, score, positive)
	if err != nil {
		return nil, err
	}
	if nPos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("PrecisionRecallCurve", "no positive samples in y_true", math.NaN()))
	}
	points := make([]CurvePoint, 0, len(steps)+1)
	points = append(points, CurvePoint{Threshold: math.Inf(1), X: 0, Y: 1})
	for _, s := range steps {
		points = append(points, CurvePoint{
			Threshold: s.threshold,
			X:         errors.SafeDivide(float64(s.tp), float64(nPos), 0),
			Y:         float64(s.tp) / float64(s.tp+s.fp),
		})
	}
	return points, nil
}

// PRAUC は PR 曲線下面積を台形則で計算します。曲線は (recall=0, precision=1) から始まります。
// 陽性が存在しない場合は UndefinedMetricWarning を出して 0 を返します。
func PRAUC(yTrue, score *mat.VecDense, positive float64) (float64, error) {
	steps, nPos, _, err := sweep("PRAUC", yTrue, score, positive)
	if err != nil {
		return 0, err
	}
	if nPos == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("PRAUC", "no positive samples in y_true", 0))
		return 0, nil
	}
	points := make([]CurvePoint, 0, len(steps)+1)
	points = append(points, CurvePoint{X: 0, Y: 1})
	for _, s := range steps {
		points = append(points, CurvePoint{
			X: float64(s.tp) / float64(nPos),
			Y: float64(s.tp) / float64(s.tp+s.fp),
		})
	}
	return Trapezoid(points), nil
}

// AveragePrecision は各陽性サンプルの順位における precision の平均
// (recall の増分で重み付けした階段状の面積) です。同点スコアは1つの閾値として扱います。
// 陽性が存在しない場合は 0 を返します。
func AveragePrecision(yTrue, score *mat.VecDense, positive float64) (float64, error) {
	steps, nPos, _, err := sweep("AveragePrecision", yTrue, score, positive)
	if err != nil {
		return 0, err
	}
	if nPos == 0 {
		return 0, nil
	}
	var ap float64
	prevTP := 0
	for _, s := range steps {
		if s.tp == prevTP {
			continue
		}
		recallGain := float64(s.tp-prevTP) / float64(nPos)
		ap += recallGain * float64(s.tp) / float64(s.tp+s.fp)
		prevTP = s.tp
	}
	return ap, nil
}

// Trapezoid integrates Y over X with the trapezoidal rule. Points must be
// ordered by X (either direction).
func Trapezoid(points []CurvePoint) float64 {
	var area float64
	for i := 1; i < len(points); i++ {
		area += (points[i].X - points[i-1].X) * (points[i].Y + points[i-1].Y) / 2
	}
	return math.Abs(area)
}
