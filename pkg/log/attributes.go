// Package log defines standard attribute keys for pipeline logging.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so log output can be filtered per stage, per model family
// and per grid entry.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model.
	// Examples: "LogisticRegression", "RandomForestClassifier", "Recipe"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline stage.
	// Examples: "load", "split", "recipe", "tuning", "last_fit", "importance"
	PhaseKey = "ml.phase"

	// RunIDKey identifies one pipeline execution.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of predictor columns.
	FeaturesKey = "data.features"

	// DroppedKey indicates the number of predictors removed by a filter.
	DroppedKey = "data.dropped"

	// PositiveKey is the number of positive-class samples.
	PositiveKey = "data.positive"

	// PathKey is the input or output file path.
	PathKey = "data.path"
)

// Performance and Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// ROCAUCKey records the area under the ROC curve.
	ROCAUCKey = "metrics.roc_auc"

	// PRAUCKey records the area under the precision-recall curve.
	PRAUCKey = "metrics.pr_auc"

	// MetricKey is the name of the selection metric.
	MetricKey = "metrics.name"

	// ScoreKey is a generic metric value.
	ScoreKey = "metrics.value"

	// IterationKey records the current iteration number of an iterative solver.
	IterationKey = "training.iteration"

	// LossKey records the penalized objective value.
	LossKey = "metrics.loss"
)

// Hyperparameters and Configuration
const (
	// GridIndexKey identifies a hyperparameter grid entry.
	GridIndexKey = "grid.index"

	// GridSizeKey is the number of entries in a grid.
	GridSizeKey = "grid.size"

	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RegularizationKey records the penalty strength.
	RegularizationKey = "hyperparams.penalty"

	// MixtureKey records the elastic-net L1 share.
	MixtureKey = "hyperparams.mixture"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseLoad       = "load"
	PhaseSplit      = "split"
	PhaseRecipe     = "recipe"
	PhaseTuning     = "tuning"
	PhaseLastFit    = "last_fit"
	PhaseImportance = "importance"
)
