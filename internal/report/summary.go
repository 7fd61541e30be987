// Package report renders run results as terminal tables and writes the run
// artifacts: summary.yaml, per-model CSV files and PNG plots.
package report

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/importance"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pipeline"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// SummaryFile is the artifact name of the YAML run summary.
const SummaryFile = "summary.yaml"

// Summary is the serialisable view of a pipeline.Result. Undefined values
// (a standard error from a single resample) are omitted.
type Summary struct {
	RunID         string                 `json:"run_id" yaml:"run_id"`
	Started       time.Time              `json:"started" yaml:"started"`
	DurationMs    int64                  `json:"duration_ms" yaml:"duration_ms"`
	PositiveClass string                 `json:"positive_class" yaml:"positive_class"`
	Metric        string                 `json:"metric" yaml:"metric"`
	Samples       int                    `json:"samples" yaml:"samples"`
	Features      int                    `json:"features" yaml:"features"`
	ClassBalance  []dataset.ClassCount   `json:"class_balance" yaml:"class_balance"`
	Split         SplitSummary           `json:"split" yaml:"split"`
	Recipe        pipeline.RecipeSummary `json:"recipe" yaml:"recipe"`
	Models        []ModelSummary         `json:"models" yaml:"models"`
}

// SplitSummary records subset sizes and the seeds needed to reproduce them.
type SplitSummary struct {
	Train              int     `json:"train" yaml:"train"`
	Validation         int     `json:"validation" yaml:"validation"`
	Test               int     `json:"test" yaml:"test"`
	TestFraction       float64 `json:"test_fraction" yaml:"test_fraction"`
	ValidationFraction float64 `json:"validation_fraction" yaml:"validation_fraction"`
	TestSeed           int64   `json:"test_seed" yaml:"test_seed"`
	ValidationSeed     int64   `json:"validation_seed" yaml:"validation_seed"`
	Resampling         string  `json:"resampling" yaml:"resampling"`
}

// ModelSummary is the outcome of one model family.
type ModelSummary struct {
	Name        string                  `json:"name" yaml:"name"`
	BestIndex   int                     `json:"best_index" yaml:"best_index"`
	BestParams  map[string]float64      `json:"best_params" yaml:"best_params"`
	Selection   MetricValue             `json:"selection" yaml:"selection"`
	Test        TestMetrics             `json:"test" yaml:"test"`
	Grid        []GridRow               `json:"grid" yaml:"grid"`
	Importances []importance.Importance `json:"importances" yaml:"importances"`
}

// MetricValue is a resampled metric estimate.
type MetricValue struct {
	Mean   *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdErr *float64 `json:"std_err,omitempty" yaml:"std_err,omitempty"`
	N      int      `json:"n" yaml:"n"`
}

// TestMetrics are computed once on the held-out test set.
type TestMetrics struct {
	ROCAUC           float64                 `json:"roc_auc" yaml:"roc_auc"`
	PRAUC            float64                 `json:"pr_auc" yaml:"pr_auc"`
	AveragePrecision float64                 `json:"average_precision" yaml:"average_precision"`
	LogLoss          float64                 `json:"log_loss" yaml:"log_loss"`
	Threshold        float64                 `json:"threshold" yaml:"threshold"`
	Confusion        metrics.ConfusionMatrix `json:"confusion" yaml:"confusion"`
	Sensitivity      float64                 `json:"sensitivity" yaml:"sensitivity"`
	Specificity      float64                 `json:"specificity" yaml:"specificity"`
}

// GridRow is one grid entry.
type GridRow struct {
	Index  int                `json:"index" yaml:"index"`
	Params map[string]float64 `json:"params" yaml:"params"`
	ROCAUC MetricValue        `json:"roc_auc" yaml:"roc_auc"`
	PRAUC  MetricValue        `json:"pr_auc" yaml:"pr_auc"`
	Status string             `json:"status" yaml:"status"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func metricValue(s tuning.Summary) MetricValue {
	return MetricValue{Mean: finite(s.Mean), StdErr: finite(s.StdErr), N: s.N}
}

// NewSummary converts a pipeline result.
func NewSummary(res *pipeline.Result) *Summary {
	s := &Summary{
		RunID:         res.RunID,
		Started:       res.Started,
		DurationMs:    res.Duration.Milliseconds(),
		PositiveClass: res.PositiveClass,
		Metric:        res.Metric,
		Samples:       res.Samples,
		Features:      res.Features,
		ClassBalance:  res.ClassBalance,
		Split: SplitSummary{
			Train:              len(res.Split.Train),
			Validation:         len(res.Split.Validation),
			Test:               len(res.Split.Test),
			TestFraction:       res.Split.TestFraction,
			ValidationFraction: res.Split.ValidationFraction,
			TestSeed:           res.Split.TestSeed,
			ValidationSeed:     res.Split.ValidationSeed,
			Resampling:         res.Resampling,
		},
		Recipe: res.Recipe,
	}
	for _, mr := range res.Models() {
		s.Models = append(s.Models, modelSummary(mr, res.Metric))
	}
	return s
}

func modelSummary(mr *pipeline.ModelResult, metric string) ModelSummary {
	ms := ModelSummary{
		Name:        mr.Name,
		BestIndex:   mr.Best.Candidate.Index,
		BestParams:  mr.Best.Candidate.Params.Map(),
		Selection:   metricValue(mr.Best.Metric(metric)),
		Importances: mr.Importances,
	}
	if f := mr.Final; f != nil {
		ms.Test = TestMetrics{
			ROCAUC:           f.TestROCAUC,
			PRAUC:            f.TestPRAUC,
			AveragePrecision: f.AvgPrec,
			LogLoss:          f.LogLoss,
			Threshold:        tuning.DefaultThreshold,
			Confusion:        f.Confusion,
			Sensitivity:      f.Confusion.Sensitivity(),
			Specificity:      f.Confusion.Specificity(),
		}
	}
	ms.Grid = gridRows(mr.Report)
	return ms
}

func gridRows(rep *tuning.MetricReport) []GridRow {
	out := make([]GridRow, len(rep.Rows))
	for i, row := range rep.Rows {
		out[i] = GridRow{
			Index:  row.Candidate.Index,
			Params: row.Candidate.Params.Map(),
			ROCAUC: metricValue(row.ROCAUC),
			PRAUC:  metricValue(row.PRAUC),
			Status: row.Status(),
		}
	}
	return out
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as YAML with two-space indentation.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

// WriteSummaryFile writes summary.yaml into dir and returns its path.
func WriteSummaryFile(dir string, s *Summary) (string, error) {
	path := filepath.Join(dir, SummaryFile)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if err := WriteYAML(f, s); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

// ReadSummaryFile reads a summary.yaml written by WriteSummaryFile.
func ReadSummaryFile(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &s, nil
}
