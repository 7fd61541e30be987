package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/importance"
	"github.com/YuminosukeSato/amrpredict/internal/config"
	"github.com/YuminosukeSato/amrpredict/internal/testdata"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

func quiet(t *testing.T) {
	t.Helper()
	tl, _ := log.NewTestLogger(log.LevelWarn)
	log.SetGlobalLogger(tl)
	t.Cleanup(func() { log.SetGlobalLogger(nil) })
}

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Logistic.Penalties = []float64{0.001, 0.01, 0.05}
	cfg.Forest.Trees = []int{25}
	cfg.Forest.MtryFractions = []float64{0.3}
	cfg.Forest.MinLeafSizes = []int{1, 3}
	cfg.Importance.TopK = 25
	return cfg
}

func TestRun_WorkshopScenario(t *testing.T) {
	quiet(t)
	m := testdata.Matrix(testdata.Workshop)
	cfg := smallConfig()
	require.NoError(t, cfg.Validate())

	res, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 100, res.Samples)
	assert.Len(t, res.Split.Test, 25)
	assert.Len(t, res.Split.Other(), 75)
	assert.Equal(t, "validation", res.Resampling)

	assert.Equal(t, []string{"gene18", "gene19", "gene20"}, res.Recipe.Dropped)
	assert.Len(t, res.Recipe.Kept, 17)
	assert.Equal(t, []string{"genome_id", "antibiotic"}, res.FinalRecipe.Supplementary)

	require.Len(t, res.Models(), 2)
	for _, mr := range res.Models() {
		t.Run(mr.Name, func(t *testing.T) {
			assert.Zero(t, mr.Report.Unavailable())
			assert.Greater(t, mr.Final.TestROCAUC, 0.5)
			assert.Len(t, mr.Importances, 17)
			for _, imp := range mr.Importances {
				assert.NotContains(t, []string{"gene18", "gene19", "gene20"}, imp.Feature)
			}
		})
	}
	assert.Len(t, res.Logistic.Report.Rows, 3)
	assert.Len(t, res.Forest.Report.Rows, 2)

	var aboveChance bool
	for _, row := range res.Logistic.Report.Rows {
		aboveChance = aboveChance || row.ROCAUC.Mean > 0.5
	}
	assert.True(t, aboveChance, "no logistic grid entry beats chance on the validation rows")
	assert.Equal(t, importance.Coefficient, res.Logistic.Importances[0].Kind)
	assert.Equal(t, importance.Impurity, res.Forest.Importances[0].Kind)
}

func TestRun_TopKAndFamilies(t *testing.T) {
	quiet(t)
	cfg := smallConfig()
	cfg.Forest.Enabled = false
	cfg.Importance.TopK = 5

	res, err := Run(context.Background(), cfg, testdata.Matrix(testdata.Workshop))
	require.NoError(t, err)
	assert.Nil(t, res.Forest)
	require.NotNil(t, res.Logistic)
	assert.Len(t, res.Logistic.Importances, 5)
	for i := 1; i < len(res.Logistic.Importances); i++ {
		assert.GreaterOrEqual(t, res.Logistic.Importances[i-1].Score, res.Logistic.Importances[i].Score)
	}
}

func TestRun_CrossValidation(t *testing.T) {
	quiet(t)
	cfg := smallConfig()
	cfg.Forest.Enabled = false
	cfg.Split.ValidationFraction = 0
	cfg.Split.CVFolds = 3
	require.NoError(t, cfg.Validate())

	res, err := Run(context.Background(), cfg, testdata.Matrix(testdata.Workshop))
	require.NoError(t, err)
	assert.Equal(t, "3-fold", res.Resampling)
	assert.Empty(t, res.Split.Validation)
	for _, row := range res.Logistic.Report.Rows {
		assert.Equal(t, 3, row.ROCAUC.N)
	}
}

func TestRun_StageErrors(t *testing.T) {
	quiet(t)
	m := testdata.Matrix(testdata.Workshop)

	cfg := smallConfig()
	cfg.Label.PositiveClass = "Intermediate"
	_, err := Run(context.Background(), cfg, m)
	require.Error(t, err)
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "label.positive_class", cfgErr.Key)
	assert.Contains(t, err.Error(), StageLabel+":")

	// a single resistant genome cannot be stratified
	rare := testdata.Matrix(testdata.Spec{Rows: 30, Positives: 1, Genes: 5, Informative: 1, Constant: 0, Seed: 3})
	_, err = Run(context.Background(), smallConfig(), rare)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageSplit+":")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, smallConfig(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), tuning.ModelLogistic+"."+StageGrid)
}

func TestPrepare_Deterministic(t *testing.T) {
	m := testdata.Matrix(testdata.Workshop)
	a, err := Prepare(smallConfig(), m)
	require.NoError(t, err)
	b, err := Prepare(smallConfig(), m)
	require.NoError(t, err)
	assert.Equal(t, a.Split, b.Split)
	require.Len(t, a.ClassBalance, 2)
	assert.Equal(t, 80, a.ClassBalance[0].Count)
	assert.Equal(t, 20, a.ClassBalance[1].Count)
}

func TestFamilies(t *testing.T) {
	cfg := config.Default()
	fams := Families(cfg)
	require.Len(t, fams, 2)
	assert.Equal(t, tuning.ModelLogistic, fams[0].Name)
	assert.Len(t, fams[0].Candidates, config.DefaultPenaltyLevels)
	assert.Equal(t, tuning.ModelForest, fams[1].Name)
	assert.Len(t, fams[1].Candidates, 2*3*2)
	assert.NotNil(t, fams[0].Path, "logistic grid is fitted as a regularisation path")
	assert.Nil(t, fams[1].Path)
}

func TestPrepare_WorkshopClassRatio(t *testing.T) {
	m := testdata.Matrix(testdata.Workshop)
	prep, err := Prepare(config.Default(), m)
	require.NoError(t, err)

	whole := dataset.Proportion(prep.Y, 1)
	require.InDelta(t, 0.2, whole, 1e-12)

	tests := []struct {
		name string
		idx  []int
	}{
		{"train", prep.Split.Train},
		{"validation", prep.Split.Validation},
		{"test", prep.Split.Test},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEmpty(t, tt.idx)
			got := dataset.Proportion(model_selection.Take(prep.Y, tt.idx), 1)
			assert.InDelta(t, whole, got, 0.05, "resistant share in %s", tt.name)
		})
	}
}

func TestBundle_RoundTrip(t *testing.T) {
	quiet(t)
	m := testdata.Matrix(testdata.Workshop)
	res, err := Run(context.Background(), smallConfig(), m)
	require.NoError(t, err)
	test := m.Subset(res.Split.Test)

	for _, mr := range res.Models() {
		t.Run(mr.Name, func(t *testing.T) {
			b, err := NewBundle(res, mr)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), mr.Name+".gob")
			require.NoError(t, b.Save(path))

			loaded, err := LoadBundle(path)
			require.NoError(t, err)
			assert.Equal(t, res.RunID, loaded.RunID)
			assert.Equal(t, mr.Final.Candidate.Params, loaded.Params)

			preds, err := loaded.Predict(test)
			require.NoError(t, err)
			require.Len(t, preds, test.NRows())
			for i, p := range preds {
				assert.Equal(t, test.IDs[i], p.ID)
				assert.InDelta(t, mr.Final.Scores.AtVec(i), p.Probability, 1e-12)
				assert.Equal(t, map[string]string{
					"genome_id":  test.Metadata["genome_id"][i],
					"antibiotic": "ampicillin",
				}, p.Metadata)
				if p.Probability >= 0.5 {
					assert.Equal(t, "Resistant", p.Predicted)
				}
			}
		})
	}
}

func TestBundle_PredictSchemaMismatch(t *testing.T) {
	quiet(t)
	m := testdata.Matrix(testdata.Workshop)
	cfg := smallConfig()
	cfg.Forest.Enabled = false
	res, err := Run(context.Background(), cfg, m)
	require.NoError(t, err)
	b, err := NewBundle(res, res.Logistic)
	require.NoError(t, err)

	other := testdata.Matrix(testdata.Spec{Rows: 10, Positives: 3, Genes: 12, Informative: 2, Constant: 0, Seed: 1})
	_, err = b.Predict(other)
	require.Error(t, err)
	var schemaErr *errors.SchemaMismatchError
	assert.ErrorAs(t, err, &schemaErr)
}
