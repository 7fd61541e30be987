// Package metrics は二値分類の評価指標を提供します。
//
// 非対称な指標 (ROC-AUC, PR-AUC, 感度など) はすべて陽性クラスのラベルを
// 引数で明示的に受け取ります。
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// Metric names accepted by Score.
const (
	MetricROCAUC = "roc_auc"
	MetricPRAUC  = "pr_auc"
)

// ValidMetric reports whether name is a metric Score understands.
func ValidMetric(name string) bool {
	return name == MetricROCAUC || name == MetricPRAUC
}

// Score dispatches to the named ranking metric.
func Score(metric string, yTrue, score *mat.VecDense, positive float64) (float64, error) {
	switch metric {
	case MetricROCAUC:
		return ROCAUC(yTrue, score, positive)
	case MetricPRAUC:
		return PRAUC(yTrue, score, positive)
	default:
		return 0, errors.NewValidationError("metric", "must be roc_auc or pr_auc", metric)
	}
}

// checkPair は2つのベクトルが空でなく同じ長さであることを確認します。
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(yTrue.AtVec(i)) || math.IsNaN(yPred.AtVec(i)) {
			return 0, errors.NewValueError(op, fmt.Sprintf("NaN at index %d", i))
		}
	}
	return n, nil
}

// ROCAUC は ROC 曲線下面積を Mann-Whitney の U 統計量として計算します。
// スコアが同点の陽性・陰性ペアは 1/2 として数えます。
//
// 陽性または陰性しか含まれない場合は UndefinedMetricWarning を出して 0.5 を返します。
func ROCAUC(yTrue, score *mat.VecDense, positive float64) (float64, error) {
	n, err := checkPair("ROCAUC", yTrue, score)
	if err != nil {
		return 0, err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return score.AtVec(order[a]) < score.AtVec(order[b]) })

	// 同点には平均順位を割り当てる
	var nPos, nNeg int
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && score.AtVec(order[j+1]) == score.AtVec(order[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(order[k]) == positive {
				nPos++
				rankSum += avgRank
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("ROCAUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUC は 0/1 ラベルに対する ROC-AUC です。0/1 以外のラベルはエラーになります。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return 0, errors.NewValueError("AUC", fmt.Sprintf("labels must be 0 or 1, got %v", v))
		}
	}
	return ROCAUC(yTrue, yPred, 1)
}

// Accuracy は一致率を返します。多クラスのラベルにも使えます。
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// BinaryLogLoss は 0/1 ラベルに対する平均交差エントロピーです。確率は [1e-15, 1-1e-15] にクリップします。
func BinaryLogLoss(yTrue, proba *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, proba)
	if err != nil {
		return 0, err
	}
	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return 0, errors.NewValueError("BinaryLogLoss", fmt.Sprintf("labels must be 0 or 1, got %v", y))
		}
		p := errors.ClipValue(proba.AtVec(i), eps, 1-eps)
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return sum / float64(n), nil
}

// ConfusionMatrix は閾値で二値化した予測の集計です。
type ConfusionMatrix struct {
	TP int `json:"tp" yaml:"tp"`
	FP int `json:"fp" yaml:"fp"`
	TN int `json:"tn" yaml:"tn"`
	FN int `json:"fn" yaml:"fn"`
}

// Confusion は score >= threshold を陽性と予測したときの混同行列を返します。
func Confusion(yTrue, score *mat.VecDense, positive, threshold float64) (ConfusionMatrix, error) {
	n, err := checkPair("Confusion", yTrue, score)
	if err != nil {
		return ConfusionMatrix{}, err
	}
	var cm ConfusionMatrix
	for i := 0; i < n; i++ {
		actual := yTrue.AtVec(i) == positive
		predicted := score.AtVec(i) >= threshold
		switch {
		case actual && predicted:
			cm.TP++
		case actual:
			cm.FN++
		case predicted:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

// Total returns the number of scored samples.
func (c ConfusionMatrix) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Accuracy returns (TP+TN)/total.
func (c ConfusionMatrix) Accuracy() float64 {
	return errors.SafeDivide(float64(c.TP+c.TN), float64(c.Total()), 0)
}

// Sensitivity returns TP/(TP+FN), the true positive rate.
func (c ConfusionMatrix) Sensitivity() float64 {
	return errors.SafeDivide(float64(c.TP), float64(c.TP+c.FN), 0)
}

// Specificity returns TN/(TN+FP).
func (c ConfusionMatrix) Specificity() float64 {
	return errors.SafeDivide(float64(c.TN), float64(c.TN+c.FP), 0)
}

// Precision returns TP/(TP+FP).
func (c ConfusionMatrix) Precision() float64 {
	return errors.SafeDivide(float64(c.TP), float64(c.TP+c.FP), 0)
}

// Sensitivity is a convenience wrapper around Confusion.
func Sensitivity(yTrue, score *mat.VecDense, positive, threshold float64) (float64, error) {
	cm, err := Confusion(yTrue, score, positive, threshold)
	if err != nil {
		return 0, err
	}
	return cm.Sensitivity(), nil
}

// Specificity is a convenience wrapper around Confusion.
func Specificity(yTrue, score *mat.VecDense, positive, threshold float64) (float64, error) {
	cm, err := Confusion(yTrue, score, positive, threshold)
	if err != nil {
		return 0, err
	}
	return cm.Specificity(), nil
}
