package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/amrpredict/dataset"
	"github.com/YuminosukeSato/amrpredict/internal/report"
	"github.com/YuminosukeSato/amrpredict/pipeline"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "amrpredict v%s (%s)\n", Version, GitCommit)
		},
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [data.csv]",
		Short: "Run the whole workflow and write its artifacts",
		Long: `Load the matrix, split it, tune both model families, score the best
entry of each on the test set and write summary.yaml, curve CSVs, plots and
model bundles into <output>/<run id>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			path, err := dataPath(cfg, args)
			if err != nil {
				return err
			}
			r, err := rendererFor(cmd, cfg)
			if err != nil {
				return err
			}
			m, err := dataset.LoadFile(path, cfg.LoadOptions())
			if err != nil {
				return errors.Wrap(err, "load")
			}
			res, err := pipeline.Run(cmd.Context(), cfg, m)
			if err != nil {
				return err
			}
			if err := r.Result(res); err != nil {
				return err
			}

			dir := filepath.Join(cfg.Output.Dir, res.RunID)
			written, err := report.WriteArtifacts(dir, res, report.Options{
				Plots:      cfg.Output.Plots,
				SaveModels: cfg.Output.SaveModels,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d artifacts written to %s\n", len(written), dir)
			return nil
		},
	}
	fs := cmd.Flags()
	addSplitFlags(fs)
	addModelFlags(fs)
	fs.Int("top-k", 0, "number of predictors reported per model (0 = all)")
	fs.Bool("plots", true, "render ROC, PR and penalty plots")
	fs.Bool("save-models", true, "save fitted model bundles")
	return cmd
}

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [data.csv]",
		Short: "Show the class balance and the stratified split",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			path, err := dataPath(cfg, args)
			if err != nil {
				return err
			}
			r, err := rendererFor(cmd, cfg)
			if err != nil {
				return err
			}
			m, err := dataset.LoadFile(path, cfg.LoadOptions())
			if err != nil {
				return errors.Wrap(err, "load")
			}
			prep, err := pipeline.Prepare(cfg, m)
			if err != nil {
				return err
			}
			return r.Split(prep, cfg.Label.PositiveClass)
		},
	}
	addSplitFlags(cmd.Flags())
	return cmd
}

func newGridCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "List the hyperparameter candidates a run would evaluate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			r, err := rendererFor(cmd, cfg)
			if err != nil {
				return err
			}
			return r.Grid(pipeline.Families(cfg))
		},
	}
	addModelFlags(cmd.Flags())
	return cmd
}

func newPredictCommand() *cobra.Command {
	var bundlePath string
	cmd := &cobra.Command{
		Use:   "predict --model <bundle.gob> [data.csv]",
		Short: "Score genomes with a saved model bundle",
		Long: `Apply the recipe and model stored in a bundle written by "run" to a
presence/absence matrix. The phenotype column is optional.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			path, err := dataPath(cfg, args)
			if err != nil {
				return err
			}
			r, err := rendererFor(cmd, cfg)
			if err != nil {
				return err
			}
			b, err := pipeline.LoadBundle(bundlePath)
			if err != nil {
				return err
			}
			opts := cfg.LoadOptions()
			opts.Unlabeled = true
			m, err := dataset.LoadFile(path, opts)
			if err != nil {
				return errors.Wrap(err, "load")
			}
			preds, err := b.Predict(m)
			if err != nil {
				return err
			}
			return r.Predictions(preds)
		},
	}
	cmd.Flags().StringVarP(&bundlePath, "model", "m", "", "model bundle written by run")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
