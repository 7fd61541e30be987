package pipeline

import (
	"strconv"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/internal/config"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/preprocessing"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

type fitted struct {
	recipe   *preprocessing.FittedRecipe
	resample tuning.Resample
}

// buildResamples returns the single train/validation pair, or one pair per
// stratified fold of the non-test rows when no validation set is drawn. The
// recipe is refitted on the analysis rows of every resample.
func buildResamples(cfg *config.Config, rec preprocessing.Recipe, m *dataset.FeatureMatrix, prep *Prepared) ([]tuning.Resample, error) {
	if len(prep.Split.Validation) > 0 {
		f, err := fitResample("validation", rec, m, prep.Y, prep.Split.Train, prep.Split.Validation)
		if err != nil {
			return nil, err
		}
		return []tuning.Resample{f.resample}, nil
	}

	other := prep.Split.Other()
	folds, err := model_selection.NewStratifiedKFold(cfg.Split.CVFolds, true, cfg.Split.ValidationSeed).
		Split(model_selection.Take(prep.Y, other))
	if err != nil {
		return nil, err
	}
	out := make([]tuning.Resample, len(folds))
	for k, fold := range folds {
		f, err := fitResample("fold"+strconv.Itoa(k+1), rec, m, prep.Y, parentRows(fold.Train, other), parentRows(fold.Test, other))
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", k+1)
		}
		out[k] = f.resample
	}
	return out, nil
}

// finalResample refits the recipe on train + validation rows and applies it
// to the test rows. It also returns the kept predictor names.
func finalResample(rec preprocessing.Recipe, m *dataset.FeatureMatrix, prep *Prepared) (*fitted, []string, error) {
	f, err := fitResample("test", rec, m, prep.Y, prep.Split.Other(), prep.Split.Test)
	if err != nil {
		return nil, nil, err
	}
	return f, append([]string(nil), f.recipe.Kept...), nil
}

// roles declares the metadata columns found in m as supplementary, so they
// travel unchanged with every transformed subset and with model bundles.
func roles(cfg *config.Config, m *dataset.FeatureMatrix) preprocessing.Recipe {
	return preprocessing.Recipe{
		Outcome:       cfg.Data.LabelColumn,
		Supplementary: append([]string(nil), m.MetadataColumns...),
	}
}

func fitResample(id string, rec preprocessing.Recipe, m *dataset.FeatureMatrix, y []float64, analysis, assessment []int) (*fitted, error) {
	train := m.Subset(analysis)
	recipe, err := rec.Fit(train)
	if err != nil {
		return nil, err
	}
	trainT, err := recipe.Apply(train)
	if err != nil {
		return nil, err
	}
	testT, err := recipe.Apply(m.Subset(assessment))
	if err != nil {
		return nil, err
	}
	return &fitted{
		recipe: recipe,
		resample: tuning.Resample{
			ID:     id,
			TrainX: trainT.X,
			TrainY: model_selection.Take(y, analysis),
			TestX:  testT.X,
			TestY:  model_selection.Take(y, assessment),
		},
	}, nil
}

// parentRows maps fold indices into other back to matrix rows.
func parentRows(sub, other []int) []int {
	out := make([]int, len(sub))
	for i, s := range sub {
		out[i] = other[s]
	}
	return out
}

func countPositive(y []float64) int {
	n := 0
	for _, v := range y {
		if v == positive {
			n++
		}
	}
	return n
}
