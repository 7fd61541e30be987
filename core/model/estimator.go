package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は 0/1 の列ベクトル。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対するクラスラベル（0/1）を返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier は二値分類器のインターフェース。
// PredictProba は n×2 の行列を返し、列1が陽性クラス（耐性）の確率。
type Classifier interface {
	Fitter
	Predictor
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImporter は学習後に特徴量ごとの重要度を返せるモデル
type FeatureImporter interface {
	FeatureImportances() ([]float64, error)
}

// ConvergenceReporter は反復ソルバーで学習するモデル。
// Converged が false の学習結果は使用できない。
type ConvergenceReporter interface {
	Converged() bool
	NIter() int
}

// ParameterGetter exposes hyperparameters for reports.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// PositiveScores は分類器の陽性クラス確率を列ベクトルとして返す
//
// パラメータ:
//   - c: 学習済みの分類器
//   - X: 入力データ (n_samples × n_features)
//
// 戻り値:
//   - *mat.VecDense: 長さ n_samples の陽性クラス確率
//   - error: 予測に失敗した場合のエラー
func PositiveScores(c Classifier, X mat.Matrix) (*mat.VecDense, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, cols := proba.Dims()
	if cols != 2 {
		return nil, errors.NewDimensionError("PositiveScores", 2, cols, 1)
	}
	scores := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		scores.SetVec(i, proba.At(i, 1))
	}
	return scores, nil
}
