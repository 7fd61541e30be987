package report

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/YuminosukeSato/amrpredict/importance"
	"github.com/YuminosukeSato/amrpredict/metrics"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// Column headers of the curve CSV files.
var (
	ROCHeader = []string{"threshold", "fpr", "tpr"}
	PRHeader  = []string{"threshold", "recall", "precision"}
)

func formatCSV(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCurveCSV writes one row per curve point under header.
func WriteCurveCSV(w io.Writer, header []string, points []metrics.CurvePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{formatCSV(p.Threshold), formatCSV(p.X), formatCSV(p.Y)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteImportanceCSV writes a ranked importance list.
func WriteImportanceCSV(w io.Writer, list []importance.Importance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "feature", "score", "kind", "sign"}); err != nil {
		return err
	}
	for i, imp := range list {
		rec := []string{strconv.Itoa(i + 1), imp.Feature, formatCSV(imp.Score), string(imp.Kind), strconv.Itoa(imp.Sign)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridCSV writes one row per grid entry: index, the hyperparameters,
// mean and standard error of both metrics, the resample count and the status.
// Undefined values are written as empty cells.
func WriteGridCSV(w io.Writer, rep *tuning.MetricReport) error {
	cw := csv.NewWriter(w)
	header := []string{"index"}
	if len(rep.Rows) > 0 {
		header = append(header, rep.Rows[0].Candidate.Params.Names()...)
	}
	header = append(header, "roc_auc", "roc_auc_se", "pr_auc", "pr_auc_se", "n", "status")
	if err := cw.Write(header); err != nil {
		return err
	}
	cell := func(v float64) string {
		if math.IsNaN(v) {
			return ""
		}
		return formatCSV(v)
	}
	for _, row := range rep.Rows {
		rec := []string{strconv.Itoa(row.Candidate.Index)}
		for _, p := range row.Candidate.Params {
			rec = append(rec, formatCSV(p.Value))
		}
		rec = append(rec,
			cell(row.ROCAUC.Mean), cell(row.ROCAUC.StdErr),
			cell(row.PRAUC.Mean), cell(row.PRAUC.StdErr),
			strconv.Itoa(row.ROCAUC.N), row.Status())
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", filepath.Base(path))
	}
	return f.Close()
}
