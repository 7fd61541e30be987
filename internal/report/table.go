package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/importance"
	"github.com/YuminosukeSato/amrpredict/pipeline"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/sklearn/model_selection"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Renderer writes results to W in Format. Table and markdown produce one
// go-pretty table per section; JSON and YAML encode a single document.
type Renderer struct {
	W      io.Writer
	Format string
}

// NewRenderer returns a Renderer for w. An unknown format is an error.
func NewRenderer(w io.Writer, format string) (*Renderer, error) {
	switch format {
	case FormatTable, FormatMarkdown, FormatJSON, FormatYAML:
	case "":
		format = FormatTable
	default:
		return nil, errors.NewConfigErrorf("output.format", "unknown output format %q", format)
	}
	return &Renderer{W: w, Format: format}, nil
}

func (r *Renderer) structured() bool {
	return r.Format == FormatJSON || r.Format == FormatYAML
}

func (r *Renderer) encode(v any) error {
	if r.Format == FormatYAML {
		return WriteYAML(r.W, v)
	}
	return WriteJSON(r.W, v)
}

func (r *Renderer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.W)
	t.SetStyle(table.StyleLight)
	if title != "" && r.Format != FormatMarkdown {
		t.SetTitle(title)
	}
	return t
}

func (r *Renderer) render(title string, t table.Writer) {
	if r.Format == FormatMarkdown {
		if title != "" {
			fmt.Fprintf(r.W, "### %s\n\n", title)
		}
		t.RenderMarkdown()
		fmt.Fprintln(r.W)
		return
	}
	t.Render()
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Result renders a whole run.
func (r *Renderer) Result(res *pipeline.Result) error {
	if r.structured() {
		return r.encode(NewSummary(res))
	}
	fmt.Fprintf(r.W, "run %s: %d genomes, %d genes, positive class %q\n\n",
		res.RunID, res.Samples, res.Features, res.PositiveClass)
	r.classBalance(res.ClassBalance, res.PositiveClass)
	r.split(res.Split, res.Resampling)
	r.recipe(res.Recipe)
	for _, mr := range res.Models() {
		r.metrics(mr.Report, mr.Best.Candidate.Index)
	}
	r.final(res.Models())
	for _, mr := range res.Models() {
		r.importances(mr.Name, mr.Importances)
	}
	return nil
}

// SplitView is what the split command prints.
type SplitView struct {
	ClassBalance []dataset.ClassCount `json:"class_balance" yaml:"class_balance"`
	Split        SplitSummary         `json:"split" yaml:"split"`
}

// Split renders the class balance and split sizes.
func (r *Renderer) Split(prep *pipeline.Prepared, positiveClass string) error {
	if r.structured() {
		return r.encode(SplitView{
			ClassBalance: prep.ClassBalance,
			Split: SplitSummary{
				Train:              len(prep.Split.Train),
				Validation:         len(prep.Split.Validation),
				Test:               len(prep.Split.Test),
				TestFraction:       prep.Split.TestFraction,
				ValidationFraction: prep.Split.ValidationFraction,
				TestSeed:           prep.Split.TestSeed,
				ValidationSeed:     prep.Split.ValidationSeed,
			},
		})
	}
	r.classBalance(prep.ClassBalance, positiveClass)
	t := r.newTable("Class balance per subset")
	t.AppendHeader(table.Row{"subset", "genomes", "positive", "positive share"})
	for _, sub := range []struct {
		name string
		idx  []int
	}{{"train", prep.Split.Train}, {"validation", prep.Split.Validation}, {"test", prep.Split.Test}} {
		if len(sub.idx) == 0 {
			continue
		}
		y := model_selection.Take(prep.Y, sub.idx)
		pos := 0
		for _, v := range y {
			if v == 1 {
				pos++
			}
		}
		t.AppendRow(table.Row{sub.name, len(sub.idx), pos, fmtFloat(dataset.Proportion(y, 1))})
	}
	r.render("Class balance per subset", t)
	return nil
}

func (r *Renderer) classBalance(balance []dataset.ClassCount, positiveClass string) {
	t := r.newTable("Phenotype")
	t.AppendHeader(table.Row{"class", "genomes", "share"})
	for _, c := range balance {
		name := "other"
		if c.Label == 1 {
			name = positiveClass
		}
		t.AppendRow(table.Row{name, c.Count, fmtFloat(c.Proportion)})
	}
	r.render("Phenotype", t)
}

func (r *Renderer) split(s model_selection.ThreeWaySplit, resampling string) {
	t := r.newTable("Split")
	t.AppendHeader(table.Row{"subset", "genomes", "seed"})
	t.AppendRow(table.Row{"train", len(s.Train), ""})
	if len(s.Validation) > 0 {
		t.AppendRow(table.Row{"validation", len(s.Validation), s.ValidationSeed})
	}
	t.AppendRow(table.Row{"test", len(s.Test), s.TestSeed})
	t.AppendFooter(table.Row{"resampling", resampling, ""})
	r.render("Split", t)
}

func (r *Renderer) recipe(s pipeline.RecipeSummary) {
	t := r.newTable("Recipe")
	t.AppendHeader(table.Row{"predictors", "kept", "dropped (zero variance)"})
	t.AppendRow(table.Row{s.Predictors, len(s.Kept), len(s.Dropped)})
	r.render("Recipe", t)
}

// Metrics renders one grid report. best marks the selected row; -1 marks none.
func (r *Renderer) Metrics(rep *tuning.MetricReport, best int) error {
	if r.structured() {
		return r.encode(gridRows(rep))
	}
	r.metrics(rep, best)
	return nil
}

func (r *Renderer) metrics(rep *tuning.MetricReport, best int) {
	title := fmt.Sprintf("%s grid (%s)", rep.Model, rep.Metric)
	t := r.newTable(title)
	var names []string
	if len(rep.Rows) > 0 {
		names = rep.Rows[0].Candidate.Params.Names()
	}
	header := table.Row{"", "#"}
	for _, n := range names {
		header = append(header, n)
	}
	header = append(header, "roc_auc", "se", "pr_auc", "se", "n", "status")
	t.AppendHeader(header)
	for _, row := range rep.Rows {
		mark := ""
		if row.Candidate.Index == best {
			mark = "*"
		}
		line := table.Row{mark, row.Candidate.Index}
		for _, p := range row.Candidate.Params {
			line = append(line, strconv.FormatFloat(p.Value, 'g', 4, 64))
		}
		line = append(line,
			fmtFloat(row.ROCAUC.Mean), fmtFloat(row.ROCAUC.StdErr),
			fmtFloat(row.PRAUC.Mean), fmtFloat(row.PRAUC.StdErr),
			row.ROCAUC.N, row.Status())
		t.AppendRow(line)
	}
	r.render(title, t)
}

func (r *Renderer) final(models []*pipeline.ModelResult) {
	t := r.newTable("Test set")
	t.AppendHeader(table.Row{"model", "params", "roc_auc", "pr_auc", "avg precision", "sensitivity", "specificity", "TP", "FP", "TN", "FN"})
	for _, mr := range models {
		f := mr.Final
		if f == nil {
			continue
		}
		c := f.Confusion
		t.AppendRow(table.Row{
			mr.Name, f.Candidate.Params.String(),
			fmtFloat(f.TestROCAUC), fmtFloat(f.TestPRAUC), fmtFloat(f.AvgPrec),
			fmtFloat(c.Sensitivity()), fmtFloat(c.Specificity()),
			c.TP, c.FP, c.TN, c.FN,
		})
	}
	r.render("Test set", t)
}

func (r *Renderer) importances(model string, list []importance.Importance) {
	title := fmt.Sprintf("Top %d predictors (%s)", len(list), model)
	t := r.newTable(title)
	t.AppendHeader(table.Row{"rank", "gene", "score", "kind", "direction"})
	for i, imp := range list {
		dir := ""
		switch imp.Sign {
		case 1:
			dir = "resistance"
		case -1:
			dir = "susceptibility"
		}
		t.AppendRow(table.Row{i + 1, imp.Feature, fmtFloat(imp.Score), string(imp.Kind), dir})
	}
	r.render(title, t)
}

// GridView is one family's candidate list for the grid command.
type GridView struct {
	Model      string             `json:"model" yaml:"model"`
	Candidates []tuning.Candidate `json:"candidates" yaml:"candidates"`
}

// Grid renders the candidates that a run would evaluate.
func (r *Renderer) Grid(families []pipeline.Family) error {
	if r.structured() {
		views := make([]GridView, len(families))
		for i, f := range families {
			views[i] = GridView{Model: f.Name, Candidates: f.Candidates}
		}
		return r.encode(views)
	}
	for _, f := range families {
		title := fmt.Sprintf("%s grid: %d candidates", f.Name, len(f.Candidates))
		t := r.newTable(title)
		header := table.Row{"#"}
		if len(f.Candidates) > 0 {
			for _, n := range f.Candidates[0].Params.Names() {
				header = append(header, n)
			}
		}
		t.AppendHeader(header)
		for _, c := range f.Candidates {
			line := table.Row{c.Index}
			for _, p := range c.Params {
				line = append(line, strconv.FormatFloat(p.Value, 'g', 6, 64))
			}
			t.AppendRow(line)
		}
		r.render(title, t)
	}
	return nil
}

// Predictions renders per-genome scores.
func (r *Renderer) Predictions(preds []pipeline.Prediction) error {
	if r.structured() {
		return r.encode(preds)
	}
	var extra []string
	if len(preds) > 0 {
		for name := range preds[0].Metadata {
			extra = append(extra, name)
		}
		sort.Strings(extra)
	}
	t := r.newTable("Predictions")
	header := table.Row{"sample"}
	for _, name := range extra {
		header = append(header, name)
	}
	t.AppendHeader(append(header, "probability", "predicted"))
	for _, p := range preds {
		row := table.Row{p.ID}
		for _, name := range extra {
			row = append(row, p.Metadata[name])
		}
		t.AppendRow(append(row, fmtFloat(p.Probability), p.Predicted))
	}
	r.render("Predictions", t)
	return nil
}
