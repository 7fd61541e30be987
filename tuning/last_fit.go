package tuning

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

// DefaultThreshold is the probability cut used for the test confusion matrix.
const DefaultThreshold = 0.5

// FinalFit is the selected candidate refitted on the full training data and
// scored once on the test set.
type FinalFit struct {
	Candidate  Candidate
	Model      model.Classifier
	TestROCAUC float64
	TestPRAUC  float64
	AvgPrec    float64
	LogLoss    float64
	ROC        []metrics.CurvePoint
	PR         []metrics.CurvePoint
	Confusion  metrics.ConfusionMatrix
	Scores     *mat.VecDense
}

// LastFit は選択された候補を学習データ全体 (train + validation) で再学習し、
// テストデータで一度だけ評価します。
//
// パラメータ:
//   - factory: 候補のパラメータから未学習モデルを作る関数
//   - cand: Best で選ばれた候補
//   - final: 学習データ全体 (TrainX/TrainY) とテストデータ (TestX/TestY)
//   - positive: 陽性クラスのラベル
func LastFit(ctx context.Context, modelName string, factory Factory, cand Candidate, final Resample, positive float64) (*FinalFit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(final.TrainY) == 0 || len(final.TestY) == 0 {
		return nil, errors.NewFitError(modelName, "last_fit", cand.Index, errors.ErrEmptyData)
	}
	start := time.Now()

	m, err := factory(cand.Params)
	if err != nil {
		return nil, errors.NewFitError(modelName, "build", cand.Index, err)
	}
	if err := m.Fit(final.TrainX, column(final.TrainY)); err != nil {
		return nil, errors.NewFitError(modelName, "fit", cand.Index, err)
	}
	if err := checkConverged(modelName, cand, m); err != nil {
		return nil, err
	}
	scores, err := model.PositiveScores(m, final.TestX)
	if err != nil {
		return nil, errors.NewFitError(modelName, "predict", cand.Index, err)
	}

	truth := mat.NewVecDense(len(final.TestY), final.TestY)
	out := &FinalFit{Candidate: cand, Model: m, Scores: scores}
	if out.TestROCAUC, err = metrics.ROCAUC(truth, scores, positive); err != nil {
		return nil, errors.Wrap(err, "test roc_auc")
	}
	if out.TestPRAUC, err = metrics.PRAUC(truth, scores, positive); err != nil {
		return nil, errors.Wrap(err, "test pr_auc")
	}
	if out.AvgPrec, err = metrics.AveragePrecision(truth, scores, positive); err != nil {
		return nil, errors.Wrap(err, "test average precision")
	}
	if out.ROC, err = metrics.ROCCurve(truth, scores, positive); err != nil {
		return nil, errors.Wrap(err, "test roc curve")
	}
	if out.PR, err = metrics.PrecisionRecallCurve(truth, scores, positive); err != nil {
		return nil, errors.Wrap(err, "test pr curve")
	}
	if out.Confusion, err = metrics.Confusion(truth, scores, positive, DefaultThreshold); err != nil {
		return nil, errors.Wrap(err, "test confusion matrix")
	}
	// log loss is defined on 0/1 truth; with another positive label it is skipped
	if positive == 1 {
		if out.LogLoss, err = metrics.BinaryLogLoss(truth, scores); err != nil {
			return nil, errors.Wrap(err, "test log loss")
		}
	}

	log.GetLoggerWithName("tuning").Info("Final model scored on test set",
		log.ModelNameKey, modelName,
		log.PhaseKey, log.PhaseLastFit,
		log.HyperParamsKey, cand.Params.String(),
		log.ROCAUCKey, out.TestROCAUC,
		log.PRAUCKey, out.TestPRAUC,
		log.SamplesKey, len(final.TestY),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}
