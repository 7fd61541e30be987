package config

import (
	"github.com/YuminosukeSato/amrpredict/dataset"
)

// Default configuration values.
const (
	DefaultConfigFile         = "amrpredict.yaml"
	DefaultTestFraction       = 0.25
	DefaultValidationFraction = 0.2
	DefaultTestSeed           = 42
	DefaultValidationSeed     = 4242
	DefaultMixture            = 1.0
	DefaultPenaltyMinExp      = -4.0
	DefaultPenaltyMaxExp      = -1.0
	DefaultPenaltyLevels      = 30
	DefaultMaxIter            = 100
	DefaultTol                = 1e-7
	DefaultForestSeed         = 42
	DefaultMetric             = "roc_auc"
	DefaultTopK               = 20
	DefaultOutputDir          = "amrpredict-out"
	DefaultOutputFormat       = "table"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
)

// Output formats accepted by output.format.
var OutputFormats = []string{"table", "markdown", "json", "yaml"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			IDColumn:        dataset.DefaultIDColumn,
			LabelColumn:     dataset.DefaultLabelColumn,
			MetadataColumns: append([]string(nil), dataset.DefaultMetadataColumns...),
			Delimiter:       ",",
		},
		Label: LabelConfig{PositiveClass: dataset.DefaultPositiveClass},
		Split: SplitConfig{
			TestFraction:       DefaultTestFraction,
			ValidationFraction: DefaultValidationFraction,
			TestSeed:           DefaultTestSeed,
			ValidationSeed:     DefaultValidationSeed,
			CVFolds:            5,
		},
		Logistic: LogisticConfig{
			Enabled: true,
			Mixture: DefaultMixture,
			PenaltyGrid: PenaltyGrid{
				MinExp: DefaultPenaltyMinExp,
				MaxExp: DefaultPenaltyMaxExp,
				Levels: DefaultPenaltyLevels,
			},
			MaxIter: DefaultMaxIter,
			Tol:     DefaultTol,
		},
		Forest: ForestConfig{
			Enabled:       true,
			Trees:         []int{100, 300},
			MtryFractions: []float64{0.1, 0.3, 0.5},
			MinLeafSizes:  []int{1, 5},
			Seed:          DefaultForestSeed,
		},
		Evaluation: EvaluationConfig{Metric: DefaultMetric},
		Importance: ImportanceConfig{TopK: DefaultTopK},
		Output: OutputConfig{
			Dir:        DefaultOutputDir,
			Format:     DefaultOutputFormat,
			Plots:      true,
			SaveModels: true,
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// defaultMap flattens Default() into koanf keys.
func defaultMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"data.id_column":                d.Data.IDColumn,
		"data.label_column":             d.Data.LabelColumn,
		"data.metadata_columns":         d.Data.MetadataColumns,
		"data.delimiter":                d.Data.Delimiter,
		"label.positive_class":          d.Label.PositiveClass,
		"split.test_fraction":           d.Split.TestFraction,
		"split.validation_fraction":     d.Split.ValidationFraction,
		"split.test_seed":               d.Split.TestSeed,
		"split.validation_seed":         d.Split.ValidationSeed,
		"split.cv_folds":                d.Split.CVFolds,
		"logistic.enabled":              d.Logistic.Enabled,
		"logistic.mixture":              d.Logistic.Mixture,
		"logistic.penalty_grid.min_exp": d.Logistic.PenaltyGrid.MinExp,
		"logistic.penalty_grid.max_exp": d.Logistic.PenaltyGrid.MaxExp,
		"logistic.penalty_grid.levels":  d.Logistic.PenaltyGrid.Levels,
		"logistic.max_iter":             d.Logistic.MaxIter,
		"logistic.tol":                  d.Logistic.Tol,
		"forest.enabled":                d.Forest.Enabled,
		"forest.trees":                  d.Forest.Trees,
		"forest.mtry_fractions":         d.Forest.MtryFractions,
		"forest.min_leaf_sizes":         d.Forest.MinLeafSizes,
		"forest.max_depth":              d.Forest.MaxDepth,
		"forest.seed":                   d.Forest.Seed,
		"forest.jobs":                   d.Forest.Jobs,
		"evaluation.metric":             d.Evaluation.Metric,
		"evaluation.workers":            d.Evaluation.Workers,
		"importance.top_k":              d.Importance.TopK,
		"output.dir":                    d.Output.Dir,
		"output.format":                 d.Output.Format,
		"output.plots":                  d.Output.Plots,
		"output.save_models":            d.Output.SaveModels,
		"log.level":                     d.Log.Level,
		"log.format":                    d.Log.Format,
	}
}
