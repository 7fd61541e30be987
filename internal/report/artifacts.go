package report

import (
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/amrpredict/pipeline"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
	"github.com/YuminosukeSato/amrpredict/tuning"
)

// Options selects the optional artifacts.
type Options struct {
	Plots      bool
	SaveModels bool
}

// WriteArtifacts writes every artifact of res into dir, creating it if
// needed, and returns the written paths in order:
//
//	summary.yaml
//	metrics_<model>.csv, importance_<model>.csv
//	roc_<model>.csv, pr_<model>.csv
//	<model>.gob                        (SaveModels)
//	roc.png, pr.png, penalty_logistic.png (Plots)
func WriteArtifacts(dir string, res *pipeline.Result, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", dir)
	}
	var written []string
	add := func(name string, write func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, write); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	path, err := WriteSummaryFile(dir, NewSummary(res))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	var roc, pr []NamedCurve
	for _, mr := range res.Models() {
		if err := add("metrics_"+mr.Name+".csv", func(w io.Writer) error { return WriteGridCSV(w, mr.Report) }); err != nil {
			return nil, err
		}
		if err := add("importance_"+mr.Name+".csv", func(w io.Writer) error { return WriteImportanceCSV(w, mr.Importances) }); err != nil {
			return nil, err
		}
		if mr.Final == nil {
			continue
		}
		if err := add("roc_"+mr.Name+".csv", func(w io.Writer) error { return WriteCurveCSV(w, ROCHeader, mr.Final.ROC) }); err != nil {
			return nil, err
		}
		if err := add("pr_"+mr.Name+".csv", func(w io.Writer) error { return WriteCurveCSV(w, PRHeader, mr.Final.PR) }); err != nil {
			return nil, err
		}
		roc = append(roc, NamedCurve{Name: mr.Name, Points: mr.Final.ROC})
		pr = append(pr, NamedCurve{Name: mr.Name, Points: mr.Final.PR})

		if opts.SaveModels {
			b, err := pipeline.NewBundle(res, mr)
			if err != nil {
				return nil, errors.Wrapf(err, "bundle %s", mr.Name)
			}
			path := filepath.Join(dir, mr.Name+".gob")
			if err := b.Save(path); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
	}

	if opts.Plots && len(roc) > 0 {
		for _, plt := range []struct {
			name string
			draw func(string) error
		}{
			{"roc.png", func(p string) error { return PlotROC(p, roc) }},
			{"pr.png", func(p string) error { return PlotPR(p, pr) }},
		} {
			path := filepath.Join(dir, plt.name)
			if err := plt.draw(path); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
		if res.Logistic != nil {
			path := filepath.Join(dir, "penalty_"+tuning.ModelLogistic+".png")
			if err := PlotPenalty(path, res.Logistic.Report); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
	}

	log.GetLoggerWithName("report").Info("Artifacts written",
		log.PathKey, dir,
		"files", len(written),
	)
	return written, nil
}
