// Package config loads amrpredict run configuration.
//
// Values come from built-in defaults, an optional YAML file, AMRPREDICT_*
// environment variables and command-line flags, in increasing precedence.
package config

// Config is the full run configuration.
type Config struct {
	Data       DataConfig       `koanf:"data" yaml:"data"`
	Label      LabelConfig      `koanf:"label" yaml:"label"`
	Split      SplitConfig      `koanf:"split" yaml:"split"`
	Logistic   LogisticConfig   `koanf:"logistic" yaml:"logistic"`
	Forest     ForestConfig     `koanf:"forest" yaml:"forest"`
	Evaluation EvaluationConfig `koanf:"evaluation" yaml:"evaluation"`
	Importance ImportanceConfig `koanf:"importance" yaml:"importance"`
	Output     OutputConfig     `koanf:"output" yaml:"output"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
}

// DataConfig describes the input matrix.
type DataConfig struct {
	Path            string   `koanf:"path" yaml:"path"`
	IDColumn        string   `koanf:"id_column" yaml:"id_column"`
	LabelColumn     string   `koanf:"label_column" yaml:"label_column"`
	MetadataColumns []string `koanf:"metadata_columns" yaml:"metadata_columns"`
	Delimiter       string   `koanf:"delimiter" yaml:"delimiter"`
}

// LabelConfig selects the positive phenotype.
type LabelConfig struct {
	PositiveClass string `koanf:"positive_class" yaml:"positive_class"`
}

// SplitConfig holds the split proportions and seeds. With a zero validation
// fraction the grid is resampled by CVFolds stratified folds instead.
type SplitConfig struct {
	TestFraction       float64 `koanf:"test_fraction" yaml:"test_fraction"`
	ValidationFraction float64 `koanf:"validation_fraction" yaml:"validation_fraction"`
	TestSeed           int64   `koanf:"test_seed" yaml:"test_seed"`
	ValidationSeed     int64   `koanf:"validation_seed" yaml:"validation_seed"`
	CVFolds            int     `koanf:"cv_folds" yaml:"cv_folds"`
}

// PenaltyGrid is a log-spaced penalty grid 10^min_exp .. 10^max_exp.
type PenaltyGrid struct {
	MinExp float64 `koanf:"min_exp" yaml:"min_exp"`
	MaxExp float64 `koanf:"max_exp" yaml:"max_exp"`
	Levels int     `koanf:"levels" yaml:"levels"`
}

// LogisticConfig configures the elastic-net grid. Explicit Penalties take
// precedence over PenaltyGrid.
type LogisticConfig struct {
	Enabled     bool        `koanf:"enabled" yaml:"enabled"`
	Mixture     float64     `koanf:"mixture" yaml:"mixture"`
	Penalties   []float64   `koanf:"penalties" yaml:"penalties,omitempty"`
	PenaltyGrid PenaltyGrid `koanf:"penalty_grid" yaml:"penalty_grid"`
	MaxIter     int         `koanf:"max_iter" yaml:"max_iter"`
	Tol         float64     `koanf:"tol" yaml:"tol"`
}

// ForestConfig configures the random-forest grid.
type ForestConfig struct {
	Enabled       bool      `koanf:"enabled" yaml:"enabled"`
	Trees         []int     `koanf:"trees" yaml:"trees"`
	MtryFractions []float64 `koanf:"mtry_fractions" yaml:"mtry_fractions"`
	MinLeafSizes  []int     `koanf:"min_leaf_sizes" yaml:"min_leaf_sizes"`
	MaxDepth      int       `koanf:"max_depth" yaml:"max_depth"`
	Seed          int64     `koanf:"seed" yaml:"seed"`
	Jobs          int       `koanf:"jobs" yaml:"jobs"`
}

// EvaluationConfig selects the metric used to pick the best grid entry.
type EvaluationConfig struct {
	Metric  string `koanf:"metric" yaml:"metric"`
	Workers int    `koanf:"workers" yaml:"workers"`
}

// ImportanceConfig sets how many predictors are reported.
type ImportanceConfig struct {
	TopK int `koanf:"top_k" yaml:"top_k"`
}

// OutputConfig controls the artifacts written by a run.
type OutputConfig struct {
	Dir        string `koanf:"dir" yaml:"dir"`
	Format     string `koanf:"format" yaml:"format"`
	Plots      bool   `koanf:"plots" yaml:"plots"`
	SaveModels bool   `koanf:"save_models" yaml:"save_models"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
