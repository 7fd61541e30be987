package tuning

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
)

// informative returns n rows whose first column is shifted by the label and
// whose other two columns are label-independent.
func informative(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			y[i] = 1
		}
		noise := float64((i*37)%11)/10 - 0.5
		X.Set(i, 0, 0.6*y[i]+noise)
		X.Set(i, 1, float64((i*13)%7)/7)
		X.Set(i, 2, float64((i*5)%3))
	}
	return X, y
}

func validationResample(t *testing.T, n int) Resample {
	t.Helper()
	X, y := informative(n)
	split, err := model_selection.StratifiedSplit(y, 0.3, 11)
	require.NoError(t, err)
	return Resample{
		ID:     "validation",
		TrainX: model_selection.TakeRows(X, split.Train),
		TrainY: model_selection.Take(y, split.Train),
		TestX:  model_selection.TakeRows(X, split.Test),
		TestY:  model_selection.Take(y, split.Test),
	}
}

func testLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return logger
}

// columnScorer scores rows by a logistic transform of column 0.
type columnScorer struct{ fitted bool }

func (c *columnScorer) Fit(X, y mat.Matrix) error {
	c.fitted = true
	return nil
}

func (c *columnScorer) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := 1 / (1 + math.Exp(-X.At(i, 0)))
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

func (c *columnScorer) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, _ := c.PredictProba(X)
	n, _ := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if proba.At(i, 1) >= 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

func TestGridSearch_Logistic(t *testing.T) {
	rs := validationResample(t, 90)
	penalties := []float64{0.001, 0.01, 10}
	gs := &GridSearch{
		Model:      ModelLogistic,
		Factory:    LogisticFactory(200, 1e-7),
		Candidates: LogisticCandidates(penalties, 1),
		Metric:     metrics.MetricROCAUC,
		Positive:   1,
		Workers:    2,
		Logger:     testLogger(),
	}

	report, err := gs.Run(context.Background(), []Resample{rs})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)

	for i, row := range report.Rows {
		assert.Equal(t, i, row.Candidate.Index, "rows are keyed by grid index")
		assert.True(t, row.Available, row.Status())
		assert.Equal(t, 1, row.ROCAUC.N)
		assert.True(t, math.IsNaN(row.ROCAUC.StdErr), "one resample has no standard error")
	}
	// every coefficient is zero at λ=10, so all test scores tie
	assert.InDelta(t, 0.5, report.Rows[2].ROCAUC.Mean, 1e-12)

	best, err := report.Best()
	require.NoError(t, err)
	assert.Greater(t, best.ROCAUC.Mean, 0.5)
	assert.NotEqual(t, 2, best.Candidate.Index)
}

func TestGridSearch_FailuresAreIsolated(t *testing.T) {
	rs := validationResample(t, 60)
	factory := func(p Params) (model.Classifier, error) {
		switch v, _ := p.Get("id"); v {
		case 1:
			return nil, errors.New("boom")
		case 2:
			panic("fit exploded")
		}
		return &columnScorer{}, nil
	}
	cands := make([]Candidate, 4)
	for i := range cands {
		cands[i] = Candidate{Index: i, Params: Params{{"id", float64(i)}}}
	}

	report, err := (&GridSearch{
		Model:      "stub",
		Factory:    factory,
		Candidates: cands,
		Metric:     metrics.MetricPRAUC,
		Positive:   1,
		Logger:     testLogger(),
	}).Run(context.Background(), []Resample{rs})
	require.NoError(t, err)
	require.Len(t, report.Rows, 4)

	assert.True(t, report.Rows[0].Available)
	assert.True(t, report.Rows[3].Available)
	assert.Equal(t, 2, report.Unavailable())

	var fitErr *errors.FitError
	require.True(t, errors.As(report.Rows[1].Err, &fitErr))
	assert.Equal(t, 1, fitErr.GridIndex)
	assert.Equal(t, "build", fitErr.Step)

	var panicErr *errors.PanicError
	assert.True(t, errors.As(report.Rows[2].Err, &panicErr), "got %v", report.Rows[2].Err)
	assert.Contains(t, report.Rows[2].Status(), "unavailable")

	best, err := report.Best()
	require.NoError(t, err)
	assert.Equal(t, 0, best.Candidate.Index, "identical scores go to the lowest index")
}

func TestGridSearch_KFoldSummary(t *testing.T) {
	X, y := informative(60)
	folds, err := model_selection.NewStratifiedKFold(3, true, 5).Split(y)
	require.NoError(t, err)
	resamples := make([]Resample, len(folds))
	for i, f := range folds {
		resamples[i] = Resample{
			TrainX: model_selection.TakeRows(X, f.Train),
			TrainY: model_selection.Take(y, f.Train),
			TestX:  model_selection.TakeRows(X, f.Test),
			TestY:  model_selection.Take(y, f.Test),
		}
	}
	report, err := (&GridSearch{
		Model:      "stub",
		Factory:    func(Params) (model.Classifier, error) { return &columnScorer{}, nil },
		Candidates: []Candidate{{Index: 0}},
		Metric:     metrics.MetricROCAUC,
		Positive:   1,
		Logger:     testLogger(),
	}).Run(context.Background(), resamples)
	require.NoError(t, err)

	row := report.Rows[0]
	assert.Equal(t, 3, row.ROCAUC.N)
	assert.False(t, math.IsNaN(row.ROCAUC.StdErr))
	assert.GreaterOrEqual(t, row.ROCAUC.StdErr, 0.0)
}

func TestGridSearch_InvalidInput(t *testing.T) {
	rs := validationResample(t, 30)
	gs := &GridSearch{
		Model:      "stub",
		Factory:    func(Params) (model.Classifier, error) { return &columnScorer{}, nil },
		Candidates: []Candidate{{Index: 0}},
		Metric:     "accuracy",
		Logger:     testLogger(),
	}
	_, err := gs.Run(context.Background(), []Resample{rs})
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "evaluation.metric", cfgErr.Key)

	gs.Metric = metrics.MetricROCAUC
	_, err = gs.Run(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gs.Run(ctx, []Resample{rs})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricReport_BestTieBreak(t *testing.T) {
	row := func(idx int, lambda, auc float64) Row {
		c := LogisticCandidates([]float64{lambda}, 1)[0]
		c.Index = idx
		return Row{Candidate: c, ROCAUC: Summary{Mean: auc, N: 1}, Available: true}
	}
	report := &MetricReport{
		Model:  ModelLogistic,
		Metric: metrics.MetricROCAUC,
		Rows: []Row{
			row(0, 0.001, 0.9),
			row(1, 0.01, 0.9+1e-13),
			row(2, 0.1, 0.85),
			{Candidate: Candidate{Index: 3}, Err: errors.New("failed")},
		},
	}

	best, err := report.Best()
	require.NoError(t, err)
	assert.Equal(t, 1, best.Candidate.Index, "within tolerance the larger penalty wins")

	top := report.ShowBest(0)
	require.Len(t, top, 3, "unavailable rows are not ranked")
	assert.Equal(t, []int{1, 0, 2}, []int{top[0].Candidate.Index, top[1].Candidate.Index, top[2].Candidate.Index})
	assert.Len(t, report.ShowBest(2), 2)

	empty := &MetricReport{Model: ModelForest, Metric: metrics.MetricROCAUC, Rows: []Row{{Err: errors.New("x")}}}
	_, err = empty.Best()
	assert.True(t, errors.Is(err, errors.ErrNoAvailableCandidates))
}

func TestForestCandidates_Complexity(t *testing.T) {
	grid, err := model_selection.ForestGrid([]int{50, 100}, []float64{0.5}, []int{1, 5})
	require.NoError(t, err)
	cands := ForestCandidates(grid)
	require.Len(t, cands, 4)

	// (50, 0.5, 5) is the simplest entry
	assert.True(t, simpler(cands[1], cands[0]))
	assert.True(t, simpler(cands[0], cands[2]))
	assert.False(t, simpler(cands[0], cands[0]))

	trees, ok := cands[3].Params.Get(ParamTrees)
	assert.True(t, ok)
	assert.Equal(t, 100.0, trees)
	assert.Equal(t, "trees=100, mtry_fraction=0.5, min_leaf=5", cands[3].Params.String())
	assert.Equal(t, []string{ParamTrees, ParamMtry, ParamMinLeaf}, cands[3].Params.Names())
}

func TestLastFit(t *testing.T) {
	rs := validationResample(t, 90)
	cand := LogisticCandidates([]float64{0.01}, 1)[0]

	final, err := LastFit(context.Background(), ModelLogistic, LogisticFactory(0, 0), cand, rs, 1)
	require.NoError(t, err)

	assert.Greater(t, final.TestROCAUC, 0.5)
	assert.GreaterOrEqual(t, final.TestPRAUC, 0.0)
	assert.LessOrEqual(t, final.TestPRAUC, 1.0)
	assert.Equal(t, len(rs.TestY), final.Confusion.Total())
	assert.Equal(t, len(rs.TestY), final.Scores.Len())
	assert.NotEmpty(t, final.ROC)
	assert.NotEmpty(t, final.PR)
	assert.Greater(t, final.LogLoss, 0.0)

	_, err = LastFit(context.Background(), ModelLogistic, LogisticFactory(0, 0), cand, Resample{}, 1)
	assert.Error(t, err)
}

func TestForestFactory(t *testing.T) {
	grid, err := model_selection.ForestGrid([]int{10}, []float64{0.7}, []int{3})
	require.NoError(t, err)
	m, err := ForestFactory(4, 9, 1)(ForestCandidates(grid)[0].Params)
	require.NoError(t, err)

	pg, ok := m.(model.ParameterGetter)
	require.True(t, ok)
	params := pg.GetParams()
	assert.Equal(t, 10, params["n_estimators"])
	assert.Equal(t, 0.7, params["max_features_fraction"])
	assert.Equal(t, 3, params["min_samples_leaf"])
	assert.Equal(t, 4, params["max_depth"])
}

func quietWarnings(t *testing.T) {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func TestGridSearch_NonConvergedEntriesUnavailable(t *testing.T) {
	quietWarnings(t)
	rs := validationResample(t, 90)

	for _, tt := range []struct {
		name string
		path PathFactory
	}{
		{"per entry", nil},
		{"path", LogisticPath(1, 1e-12)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			report, err := (&GridSearch{
				Model:      ModelLogistic,
				Factory:    LogisticFactory(1, 1e-12),
				Path:       tt.path,
				Candidates: LogisticCandidates([]float64{1e-4, 1e-3}, 1),
				Metric:     metrics.MetricROCAUC,
				Positive:   1,
				Logger:     testLogger(),
			}).Run(context.Background(), []Resample{rs})
			require.NoError(t, err)
			require.Len(t, report.Rows, 2)

			for i, row := range report.Rows {
				assert.False(t, row.Available, "grid[%d]", i)
				assert.Contains(t, row.Status(), "failed to converge")

				var fitErr *errors.FitError
				require.True(t, errors.As(row.Err, &fitErr), "got %v", row.Err)
				assert.Equal(t, i, fitErr.GridIndex)
				assert.Equal(t, "fit", fitErr.Step)

				var cw *errors.ConvergenceWarning
				require.True(t, errors.As(row.Err, &cw))
				assert.Equal(t, 1, cw.Iterations)
			}

			_, err = report.Best()
			var modelErr *errors.ModelError
			assert.True(t, errors.As(err, &modelErr), "got %v", err)
		})
	}
}

func TestGridSearch_LogisticPathMatchesEntries(t *testing.T) {
	rs := validationResample(t, 90)
	cands := LogisticCandidates([]float64{0.001, 0.05, 0.01, 10}, 0.5)
	run := func(path PathFactory) *MetricReport {
		report, err := (&GridSearch{
			Model:      ModelLogistic,
			Factory:    LogisticFactory(200, 1e-10),
			Path:       path,
			Candidates: cands,
			Metric:     metrics.MetricROCAUC,
			Positive:   1,
			Logger:     testLogger(),
		}).Run(context.Background(), []Resample{rs})
		require.NoError(t, err)
		return report
	}

	cold := run(nil)
	warm := run(LogisticPath(200, 1e-10))
	require.Len(t, warm.Rows, len(cands))
	for i := range cands {
		assert.Equal(t, i, warm.Rows[i].Candidate.Index)
		require.True(t, warm.Rows[i].Available, warm.Rows[i].Status())
		assert.InDelta(t, cold.Rows[i].ROCAUC.Mean, warm.Rows[i].ROCAUC.Mean, 1e-6)
		assert.InDelta(t, cold.Rows[i].PRAUC.Mean, warm.Rows[i].PRAUC.Mean, 1e-6)
	}
}

func TestGridSearch_PathFailuresAreIsolated(t *testing.T) {
	rs := validationResample(t, 60)
	cands := make([]Candidate, 3)
	for i := range cands {
		cands[i] = Candidate{Index: i, Params: Params{{"id", float64(i)}}}
	}

	t.Run("one candidate fails", func(t *testing.T) {
		path := func(cs []Candidate, X, y mat.Matrix) ([]model.Classifier, []error) {
			out := []model.Classifier{&columnScorer{}, nil, &columnScorer{}}
			return out, []error{nil, errors.New("singular"), nil}
		}
		report, err := (&GridSearch{
			Model: "stub", Path: path, Candidates: cands,
			Metric: metrics.MetricROCAUC, Positive: 1, Logger: testLogger(),
		}).Run(context.Background(), []Resample{rs})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Unavailable())
		assert.False(t, report.Rows[1].Available)
		assert.Contains(t, report.Rows[1].Status(), "singular")
		assert.True(t, report.Rows[0].Available)
		assert.True(t, report.Rows[2].Available)
	})

	t.Run("panic fails the resample", func(t *testing.T) {
		path := func([]Candidate, mat.Matrix, mat.Matrix) ([]model.Classifier, []error) {
			panic("path exploded")
		}
		report, err := (&GridSearch{
			Model: "stub", Path: path, Candidates: cands,
			Metric: metrics.MetricROCAUC, Positive: 1, Logger: testLogger(),
		}).Run(context.Background(), []Resample{rs})
		require.NoError(t, err)
		assert.Equal(t, 3, report.Unavailable())
		var panicErr *errors.PanicError
		assert.True(t, errors.As(report.Rows[0].Err, &panicErr), "got %v", report.Rows[0].Err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := (&GridSearch{
			Model: "stub", Path: LogisticPath(0, 0), Candidates: LogisticCandidates([]float64{0.1}, 1),
			Metric: metrics.MetricROCAUC, Positive: 1, Logger: testLogger(),
		}).Run(ctx, []Resample{rs})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLastFit_NonConverged(t *testing.T) {
	quietWarnings(t)
	rs := validationResample(t, 90)
	cand := LogisticCandidates([]float64{1e-4}, 1)[0]

	_, err := LastFit(context.Background(), ModelLogistic, LogisticFactory(1, 1e-12), cand, rs, 1)
	var fitErr *errors.FitError
	require.True(t, errors.As(err, &fitErr), "got %v", err)
	assert.Equal(t, "fit", fitErr.Step)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(err, &cw))
}
