// Package pipeline runs the AMR prediction workflow end to end: label
// binarisation, stratified splitting, recipe fitting, grid evaluation of the
// enabled model families, the final fit on the test set and importance
// extraction.
//
// Every stage consumes the immutable output of the previous one. A failure
// is returned wrapped with the name of the stage that produced it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/importance"
	"github.com/YuminosukeSato/amrpredict/internal/config"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/preprocessing"
	"github.com/YuminosukeSato/amrpredict/sklearn/ensemble"
	"github.com/YuminosukeSato/amrpredict/sklearn/linear_model"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// Stage names used in wrapped errors.
const (
	StageLabel      = "label"
	StageSplit      = "split"
	StageRecipe     = "recipe"
	StageGrid       = "grid"
	StageLastFit    = "last_fit"
	StageImportance = "importance"
)

// positive is the binary label of the positive class after Binarize.
const positive = 1.0

// RecipeSummary describes the recipe refitted on train + validation rows.
type RecipeSummary struct {
	Predictors int      `json:"predictors" yaml:"predictors"`
	Kept       []string `json:"kept" yaml:"kept"`
	Dropped    []string `json:"dropped" yaml:"dropped"`
}

// ModelResult is the outcome for one model family.
type ModelResult struct {
	Name        string                  `json:"name" yaml:"name"`
	Report      *tuning.MetricReport    `json:"report" yaml:"report"`
	Best        tuning.Row              `json:"best" yaml:"best"`
	Final       *tuning.FinalFit        `json:"-" yaml:"-"`
	Importances []importance.Importance `json:"importances" yaml:"importances"`
}

// Result is everything a run produced.
type Result struct {
	RunID         string
	Started       time.Time
	Duration      time.Duration
	PositiveClass string
	Metric        string
	Samples       int
	Features      int
	ClassBalance  []dataset.ClassCount
	Split         model_selection.ThreeWaySplit
	Resampling    string
	Recipe        RecipeSummary

	// FinalRecipe is fitted on train + validation rows and is the recipe
	// stored in model bundles.
	FinalRecipe *preprocessing.FittedRecipe

	Logistic *ModelResult
	Forest   *ModelResult
}

// Models returns the non-nil model results in a fixed order.
func (r *Result) Models() []*ModelResult {
	var out []*ModelResult
	for _, mr := range []*ModelResult{r.Logistic, r.Forest} {
		if mr != nil {
			out = append(out, mr)
		}
	}
	return out
}

// Prepared is the output of the label and split stages.
type Prepared struct {
	Y            []float64
	ClassBalance []dataset.ClassCount
	Split        model_selection.ThreeWaySplit
}

// Prepare binarises the label and draws the stratified split.
func Prepare(cfg *config.Config, m *dataset.FeatureMatrix) (*Prepared, error) {
	if m == nil || m.NRows() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, StageLabel)
	}
	y, err := dataset.Binarize(m.Labels, cfg.Label.PositiveClass)
	if err != nil {
		return nil, errors.Wrap(err, StageLabel)
	}
	split, err := model_selection.TrainValidationTestSplit(y,
		cfg.Split.TestFraction, cfg.Split.ValidationFraction,
		cfg.Split.TestSeed, cfg.Split.ValidationSeed)
	if err != nil {
		return nil, errors.Wrap(err, StageSplit)
	}
	return &Prepared{Y: y, ClassBalance: dataset.ClassBalance(y), Split: split}, nil
}

// Run executes the whole workflow on an already loaded matrix.
//
// パラメータ:
//   - ctx: キャンセル用コンテキスト（グリッド評価の中断に使う）
//   - cfg: 検証済みの設定
//   - m: 読み込み済みの特徴量行列
//
// 戻り値:
//   - *Result: 分割、グリッド結果、最終評価、重要度
//   - error: ステージ名でラップされたエラー
func Run(ctx context.Context, cfg *config.Config, m *dataset.FeatureMatrix) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:         uuid.NewString(),
		Started:       start,
		PositiveClass: cfg.Label.PositiveClass,
		Metric:        cfg.Evaluation.Metric,
	}
	logger := log.GetLoggerWithName("pipeline").With(log.RunIDKey, res.RunID)

	prep, err := Prepare(cfg, m)
	if err != nil {
		return nil, err
	}
	res.Samples, res.Features = m.NRows(), m.NFeatures()
	res.ClassBalance = prep.ClassBalance
	res.Split = prep.Split
	logger.Info("Data split",
		log.PhaseKey, log.PhaseSplit,
		log.SamplesKey, m.NRows(),
		log.PositiveKey, countPositive(prep.Y),
		"train", len(prep.Split.Train),
		"validation", len(prep.Split.Validation),
		"test", len(prep.Split.Test),
	)

	rec := roles(cfg, m)
	resamples, err := buildResamples(cfg, rec, m, prep)
	if err != nil {
		return nil, errors.Wrap(err, StageRecipe)
	}
	res.Resampling = resamples[0].ID
	if len(resamples) > 1 {
		res.Resampling = fmt.Sprintf("%d-fold", len(resamples))
	}

	final, names, err := finalResample(rec, m, prep)
	if err != nil {
		return nil, errors.Wrap(err, StageRecipe)
	}
	res.FinalRecipe = final.recipe
	res.Recipe = RecipeSummary{
		Predictors: len(final.recipe.Schema),
		Kept:       names,
		Dropped:    final.recipe.Dropped(),
	}
	logger.Info("Recipe refitted on training data",
		log.PhaseKey, log.PhaseRecipe,
		log.FeaturesKey, len(names),
		log.DroppedKey, len(res.Recipe.Dropped),
	)

	for _, fam := range Families(cfg) {
		mr, err := runFamily(ctx, cfg, fam, resamples, final.resample, names, logger)
		if err != nil {
			return nil, err
		}
		switch fam.Name {
		case tuning.ModelLogistic:
			res.Logistic = mr
		case tuning.ModelForest:
			res.Forest = mr
		}
	}

	res.Duration = time.Since(start)
	logger.Info("Run completed", log.DurationMsKey, res.Duration.Milliseconds())
	return res, nil
}

// Family is one enabled model family with its grid.
type Family struct {
	Name       string
	Factory    tuning.Factory
	Candidates []tuning.Candidate

	// Path fits the whole grid per resample; nil fits candidates one by one.
	Path tuning.PathFactory
}

// Families returns the enabled families and their candidates, logistic first.
// cfg must have passed Validate.
func Families(cfg *config.Config) []Family {
	var out []Family
	if cfg.Logistic.Enabled {
		penalties, _ := cfg.Logistic.PenaltyValues()
		out = append(out, Family{
			Name:       tuning.ModelLogistic,
			Factory:    tuning.LogisticFactory(cfg.Logistic.MaxIter, cfg.Logistic.Tol),
			Candidates: tuning.LogisticCandidates(penalties, cfg.Logistic.Mixture),
			Path:       tuning.LogisticPath(cfg.Logistic.MaxIter, cfg.Logistic.Tol),
		})
	}
	if cfg.Forest.Enabled {
		grid, _ := cfg.Forest.Grid()
		out = append(out, Family{
			Name:       tuning.ModelForest,
			Factory:    tuning.ForestFactory(cfg.Forest.MaxDepth, cfg.Forest.Seed, cfg.Forest.Jobs),
			Candidates: tuning.ForestCandidates(grid),
		})
	}
	return out
}

func runFamily(ctx context.Context, cfg *config.Config, fam Family, resamples []tuning.Resample, final tuning.Resample, names []string, logger log.Logger) (*ModelResult, error) {
	stage := func(s string) string { return fam.Name + "." + s }

	gs := &tuning.GridSearch{
		Model:      fam.Name,
		Factory:    fam.Factory,
		Candidates: fam.Candidates,
		Metric:     cfg.Evaluation.Metric,
		Positive:   positive,
		Workers:    cfg.Evaluation.Workers,
		Logger:     logger,
		Path:       fam.Path,
	}
	report, err := gs.Run(ctx, resamples)
	if err != nil {
		return nil, errors.Wrap(err, stage(StageGrid))
	}
	best, err := report.Best()
	if err != nil {
		return nil, errors.Wrap(err, stage(StageGrid))
	}
	logger.Info("Best grid entry selected",
		log.ModelNameKey, fam.Name,
		log.GridIndexKey, best.Candidate.Index,
		log.HyperParamsKey, best.Candidate.Params.String(),
		log.MetricKey, report.Metric,
		log.ScoreKey, best.Metric(report.Metric).Mean,
	)
	for rank, row := range report.ShowBest(3) {
		logger.Debug("Grid ranking",
			log.ModelNameKey, fam.Name,
			"rank", rank+1,
			log.GridIndexKey, row.Candidate.Index,
			log.ScoreKey, row.Metric(report.Metric).Mean,
		)
	}

	ff, err := tuning.LastFit(ctx, fam.Name, fam.Factory, best.Candidate, final, positive)
	if err != nil {
		return nil, errors.Wrap(err, stage(StageLastFit))
	}
	if rf, ok := ff.Model.(*ensemble.RandomForestClassifier); ok {
		logger.Info("Out-of-bag estimate", log.ModelNameKey, fam.Name, log.ROCAUCKey, rf.OOBScore())
	}

	var ranked []importance.Importance
	switch m := ff.Model.(type) {
	case *linear_model.LogisticRegression:
		ranked, err = importance.FromLogistic(m, names)
	case model.FeatureImporter:
		ranked, err = importance.FromForest(m, names)
	default:
		err = errors.NewValueError("importance", fmt.Sprintf("%T exposes no importances", ff.Model))
	}
	if err != nil {
		return nil, errors.Wrap(err, stage(StageImportance))
	}
	top, err := importance.TopK(ranked, cfg.Importance.TopK)
	if err != nil {
		return nil, errors.Wrap(err, stage(StageImportance))
	}

	return &ModelResult{
		Name:        fam.Name,
		Report:      report,
		Best:        best,
		Final:       ff,
		Importances: top,
	}, nil
}
