package tuning

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/amrpredict/core/model"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

// metric ties closer than this go to the simpler candidate
const tieTolerance = 1e-12

// Summary aggregates one metric over the resamples of a grid entry.
type Summary struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdErr float64 `json:"std_err" yaml:"std_err"`
	N      int     `json:"n" yaml:"n"`
}

func summarize(values []float64) Summary {
	s := Summary{N: len(values), Mean: math.NaN(), StdErr: math.NaN()}
	if len(values) == 0 {
		return s
	}
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdErr = stat.StdDev(values, nil) / math.Sqrt(float64(len(values)))
	}
	return s
}

// Row is the result of one grid entry. A failed entry keeps its row with
// Available false and Err set.
type Row struct {
	Candidate Candidate `json:"candidate" yaml:"candidate"`
	ROCAUC    Summary   `json:"roc_auc" yaml:"roc_auc"`
	PRAUC     Summary   `json:"pr_auc" yaml:"pr_auc"`
	Available bool      `json:"available" yaml:"available"`
	Err       error     `json:"-" yaml:"-"`
}

// Metric returns the summary of the named metric.
func (r Row) Metric(name string) Summary {
	if name == metrics.MetricPRAUC {
		return r.PRAUC
	}
	return r.ROCAUC
}

// Status is "ok" or the error message of a failed entry.
func (r Row) Status() string {
	if r.Available {
		return "ok"
	}
	if r.Err != nil {
		return "unavailable: " + r.Err.Error()
	}
	return "unavailable"
}

// MetricReport collects every grid entry of one model family, keyed by grid index.
type MetricReport struct {
	Model  string `json:"model" yaml:"model"`
	Metric string `json:"metric" yaml:"metric"`
	Rows   []Row  `json:"rows" yaml:"rows"`
}

// better reports whether a should be preferred over b for metric.
func better(a, b Row, metric string) bool {
	ma, mb := a.Metric(metric).Mean, b.Metric(metric).Mean
	if math.Abs(ma-mb) > tieTolerance {
		return ma > mb
	}
	if simpler(a.Candidate, b.Candidate) {
		return true
	}
	if simpler(b.Candidate, a.Candidate) {
		return false
	}
	return a.Candidate.Index < b.Candidate.Index
}

// Best returns the available row with the highest mean metric. Ties within
// 1e-12 go to the simplest candidate, then to the lowest grid index.
func (r *MetricReport) Best() (Row, error) {
	var best *Row
	for i := range r.Rows {
		row := &r.Rows[i]
		if !row.Available || math.IsNaN(row.Metric(r.Metric).Mean) {
			continue
		}
		if best == nil || better(*row, *best, r.Metric) {
			best = row
		}
	}
	if best == nil {
		return Row{}, errors.NewModelError(r.Model+".Best", "selection", errors.ErrNoAvailableCandidates)
	}
	return *best, nil
}

// ShowBest returns up to n available rows in selection order. n <= 0 returns all.
func (r *MetricReport) ShowBest(n int) []Row {
	rows := make([]Row, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Available && !math.IsNaN(row.Metric(r.Metric).Mean) {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return better(rows[i], rows[j], r.Metric) })
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// Unavailable returns the number of failed entries.
func (r *MetricReport) Unavailable() int {
	n := 0
	for _, row := range r.Rows {
		if !row.Available {
			n++
		}
	}
	return n
}

// GridSearch evaluates every candidate on every resample.
type GridSearch struct {
	Model      string
	Factory    Factory
	Candidates []Candidate
	Metric     string
	Positive   float64
	Workers    int // <= 0 uses every CPU
	Logger     log.Logger

	// Path, when set, fits the whole grid on each resample in one call
	// instead of building every candidate through Factory.
	Path PathFactory
}

// Run evaluates the grid. Entries run concurrently and independently; an
// entry that errors, panics or does not converge is reported as unavailable
// and the others still run. Only context cancellation aborts the search.
func (g *GridSearch) Run(ctx context.Context, resamples []Resample) (*MetricReport, error) {
	if !metrics.ValidMetric(g.Metric) {
		return nil, errors.NewConfigErrorf("evaluation.metric", "unknown metric %q", g.Metric)
	}
	if len(resamples) == 0 {
		return nil, errors.NewValueError("GridSearch.Run", "no resamples")
	}
	if len(g.Candidates) == 0 {
		return nil, errors.NewValueError("GridSearch.Run", "empty grid")
	}
	logger := g.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("tuning")
	}
	logger = logger.With(log.ModelNameKey, g.Model, log.PhaseKey, log.PhaseTuning)

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	var (
		rows []Row
		err  error
	)
	if g.Path != nil {
		rows, err = g.runPath(ctx, resamples, workers)
	} else {
		rows, err = g.runEntries(ctx, resamples, workers)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s grid search", g.Model)
	}
	for _, row := range rows {
		logRow(logger, row)
	}

	report := &MetricReport{Model: g.Model, Metric: g.Metric, Rows: rows}
	logger.Info("Grid search completed",
		log.GridSizeKey, len(rows),
		"resamples", len(resamples),
		"unavailable", report.Unavailable(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return report, nil
}

func logRow(logger log.Logger, row Row) {
	if row.Available {
		logger.Debug("Grid entry evaluated",
			log.GridIndexKey, row.Candidate.Index,
			log.HyperParamsKey, row.Candidate.Params.String(),
			log.ROCAUCKey, row.ROCAUC.Mean,
			log.PRAUCKey, row.PRAUC.Mean,
		)
		return
	}
	logger.Warn("Grid entry unavailable",
		log.GridIndexKey, row.Candidate.Index,
		log.HyperParamsKey, row.Candidate.Params.String(),
		"error", row.Err,
	)
}

// runEntries fits each candidate independently, one goroutine per entry.
func (g *GridSearch) runEntries(ctx context.Context, resamples []Resample, workers int) ([]Row, error) {
	rows := make([]Row, len(g.Candidates))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, cand := range g.Candidates {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			rows[i] = g.evaluate(cand, resamples)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *GridSearch) evaluate(cand Candidate, resamples []Resample) Row {
	row := Row{Candidate: cand}
	var rocs, prs []float64
	for _, rs := range resamples {
		var roc, pr float64
		err := errors.SafeExecute(fmt.Sprintf("%s grid[%d]", g.Model, cand.Index), func() error {
			var err error
			roc, pr, err = g.fitScore(cand, rs)
			return err
		})
		if err != nil {
			row.Err = err
			return row
		}
		rocs = append(rocs, roc)
		prs = append(prs, pr)
	}
	row.ROCAUC = summarize(rocs)
	row.PRAUC = summarize(prs)
	row.Available = true
	return row
}

func (g *GridSearch) fitScore(cand Candidate, rs Resample) (float64, float64, error) {
	if len(rs.TrainY) == 0 || len(rs.TestY) == 0 {
		return 0, 0, errors.NewFitError(g.Model, "resample", cand.Index, errors.ErrEmptyData)
	}
	m, err := g.Factory(cand.Params)
	if err != nil {
		return 0, 0, errors.NewFitError(g.Model, "build", cand.Index, err)
	}
	if err := m.Fit(rs.TrainX, column(rs.TrainY)); err != nil {
		return 0, 0, errors.NewFitError(g.Model, "fit", cand.Index, err)
	}
	if err := checkConverged(g.Model, cand, m); err != nil {
		return 0, 0, err
	}
	return g.score(cand, m, rs)
}

// score evaluates a fitted model on the assessment rows of rs.
func (g *GridSearch) score(cand Candidate, m model.Classifier, rs Resample) (float64, float64, error) {
	scores, err := model.PositiveScores(m, rs.TestX)
	if err != nil {
		return 0, 0, errors.NewFitError(g.Model, "predict", cand.Index, err)
	}
	truth := mat.NewVecDense(len(rs.TestY), rs.TestY)
	roc, err := metrics.ROCAUC(truth, scores, g.Positive)
	if err != nil {
		return 0, 0, errors.NewFitError(g.Model, "score", cand.Index, err)
	}
	pr, err := metrics.PRAUC(truth, scores, g.Positive)
	if err != nil {
		return 0, 0, errors.NewFitError(g.Model, "score", cand.Index, err)
	}
	return roc, pr, nil
}

// checkConverged turns a fit that stopped before reaching its tolerance into
// a FitError for the candidate.
func checkConverged(modelName string, cand Candidate, m model.Classifier) error {
	cr, ok := m.(model.ConvergenceReporter)
	if !ok || cr.Converged() {
		return nil
	}
	w := errors.NewConvergenceWarning(modelName, cr.NIter(),
		fmt.Sprintf("%s did not reach the tolerance", cand.Params))
	return errors.NewFitError(modelName, "fit", cand.Index, w)
}

// pathCell is the outcome of one candidate on one resample.
type pathCell struct {
	roc, pr float64
	err     error
}

// runPath fits the grid once per resample through g.Path, resamples in
// parallel, and scores every candidate on the assessment rows.
func (g *GridSearch) runPath(ctx context.Context, resamples []Resample, workers int) ([]Row, error) {
	cells := make([][]pathCell, len(resamples))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for r, rs := range resamples {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			cells[r] = g.pathResample(rs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rows := make([]Row, len(g.Candidates))
	for i, cand := range g.Candidates {
		row := Row{Candidate: cand}
		rocs := make([]float64, 0, len(resamples))
		prs := make([]float64, 0, len(resamples))
		for r := range resamples {
			c := cells[r][i]
			if c.err != nil {
				row.Err = c.err
				break
			}
			rocs = append(rocs, c.roc)
			prs = append(prs, c.pr)
		}
		if row.Err == nil {
			row.ROCAUC = summarize(rocs)
			row.PRAUC = summarize(prs)
			row.Available = true
		}
		rows[i] = row
	}
	return rows, nil
}

func (g *GridSearch) pathResample(rs Resample) []pathCell {
	cells := make([]pathCell, len(g.Candidates))
	fail := func(err error) []pathCell {
		for i, cand := range g.Candidates {
			cells[i].err = errors.NewFitError(g.Model, "fit", cand.Index, err)
		}
		return cells
	}
	if len(rs.TrainY) == 0 || len(rs.TestY) == 0 {
		return fail(errors.ErrEmptyData)
	}

	var (
		fitted []model.Classifier
		errs   []error
	)
	err := errors.SafeExecute(fmt.Sprintf("%s path %s", g.Model, rs.ID), func() error {
		fitted, errs = g.Path(g.Candidates, rs.TrainX, column(rs.TrainY))
		return nil
	})
	if err != nil {
		return fail(err)
	}
	if len(fitted) != len(g.Candidates) || len(errs) != len(g.Candidates) {
		return fail(errors.NewValueError("GridSearch.Path",
			fmt.Sprintf("path returned %d models for %d candidates", len(fitted), len(g.Candidates))))
	}

	for i, cand := range g.Candidates {
		if errs[i] != nil {
			cells[i].err = errors.NewFitError(g.Model, "fit", cand.Index, errs[i])
			continue
		}
		if fitted[i] == nil {
			cells[i].err = errors.NewFitError(g.Model, "fit", cand.Index, errors.New("no model returned"))
			continue
		}
		if err := checkConverged(g.Model, cand, fitted[i]); err != nil {
			cells[i].err = err
			continue
		}
		err := errors.SafeExecute(fmt.Sprintf("%s grid[%d]", g.Model, cand.Index), func() error {
			var err error
			cells[i].roc, cells[i].pr, err = g.score(cand, fitted[i], rs)
			return err
		})
		cells[i].err = err
	}
	return cells
}

func column(y []float64) *mat.Dense {
	return mat.NewDense(len(y), 1, append([]float64(nil), y...))
}
