package config

import (
	"slices"
	"unicode/utf8"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
)

// Validate checks every value that can be checked without the data. The
// returned error is a ConfigError naming the offending key.
func (c *Config) Validate() error {
	switch {
	case c.Data.IDColumn == "":
		return errors.NewConfigError("data.id_column", "must not be empty")
	case c.Data.LabelColumn == "":
		return errors.NewConfigError("data.label_column", "must not be empty")
	case c.Data.IDColumn == c.Data.LabelColumn:
		return errors.NewConfigError("data.label_column", "must differ from data.id_column")
	case utf8.RuneCountInString(c.Data.Delimiter) != 1:
		return errors.NewConfigErrorf("data.delimiter", "must be a single character, got %q", c.Data.Delimiter)
	case c.Label.PositiveClass == "":
		return errors.NewConfigError("label.positive_class", "must not be empty")
	case c.Split.TestFraction <= 0 || c.Split.TestFraction >= 1:
		return errors.NewConfigErrorf("split.test_fraction", "must be in (0, 1), got %v", c.Split.TestFraction)
	case c.Split.ValidationFraction < 0 || c.Split.ValidationFraction >= 1:
		return errors.NewConfigErrorf("split.validation_fraction", "must be in [0, 1), got %v", c.Split.ValidationFraction)
	case c.Split.ValidationFraction == 0 && c.Split.CVFolds < 2:
		return errors.NewConfigErrorf("split.cv_folds", "must be >= 2 when split.validation_fraction is 0, got %d", c.Split.CVFolds)
	case !c.Logistic.Enabled && !c.Forest.Enabled:
		return errors.NewConfigError("logistic.enabled", "at least one model family must be enabled")
	case c.Logistic.Mixture < 0 || c.Logistic.Mixture > 1:
		return errors.NewConfigErrorf("logistic.mixture", "must be in [0, 1], got %v", c.Logistic.Mixture)
	case c.Logistic.MaxIter < 1:
		return errors.NewConfigErrorf("logistic.max_iter", "must be >= 1, got %d", c.Logistic.MaxIter)
	case c.Logistic.Tol <= 0:
		return errors.NewConfigErrorf("logistic.tol", "must be > 0, got %v", c.Logistic.Tol)
	case c.Forest.MaxDepth < 0:
		return errors.NewConfigErrorf("forest.max_depth", "must be >= 0, got %d", c.Forest.MaxDepth)
	case !metrics.ValidMetric(c.Evaluation.Metric):
		return errors.NewConfigErrorf("evaluation.metric", "must be %s or %s, got %q", metrics.MetricROCAUC, metrics.MetricPRAUC, c.Evaluation.Metric)
	case c.Importance.TopK < 0:
		return errors.NewConfigErrorf("importance.top_k", "must be >= 0, got %d", c.Importance.TopK)
	case c.Output.Dir == "":
		return errors.NewConfigError("output.dir", "must not be empty")
	case !slices.Contains(OutputFormats, c.Output.Format):
		return errors.NewConfigErrorf("output.format", "must be one of %v, got %q", OutputFormats, c.Output.Format)
	case c.Log.Format != "console" && c.Log.Format != "json":
		return errors.NewConfigErrorf("log.format", "must be console or json, got %q", c.Log.Format)
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		return errors.NewConfigErrorf("log.level", "unknown level %q", c.Log.Level)
	}
	if c.Logistic.Enabled {
		if _, err := c.Logistic.PenaltyValues(); err != nil {
			return err
		}
	}
	if c.Forest.Enabled {
		if _, err := c.Forest.Grid(); err != nil {
			return err
		}
	}
	return nil
}

// PenaltyValues returns the explicit penalties, or the log-spaced grid when
// none are listed.
func (c LogisticConfig) PenaltyValues() ([]float64, error) {
	if len(c.Penalties) == 0 {
		return model_selection.LogSpace(c.PenaltyGrid.MinExp, c.PenaltyGrid.MaxExp, c.PenaltyGrid.Levels)
	}
	for _, p := range c.Penalties {
		if !(p > 0) {
			return nil, errors.NewConfigErrorf("logistic.penalties", "penalties must be positive, got %v", p)
		}
	}
	return append([]float64(nil), c.Penalties...), nil
}

// Grid returns the Cartesian product of the forest axes.
func (c ForestConfig) Grid() ([]model_selection.ForestParams, error) {
	return model_selection.ForestGrid(c.Trees, c.MtryFractions, c.MinLeafSizes)
}

// LoadOptions converts the data section into dataset.LoadOptions.
func (c *Config) LoadOptions() dataset.LoadOptions {
	delim, _ := utf8.DecodeRuneInString(c.Data.Delimiter)
	return dataset.LoadOptions{
		IDColumn:        c.Data.IDColumn,
		LabelColumn:     c.Data.LabelColumn,
		MetadataColumns: c.Data.MetadataColumns,
		Delimiter:       delim,
	}
}
