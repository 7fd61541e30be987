// Package cli provides the amrpredict command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/YuminosukeSato/amrpredict/internal/config"
	"github.com/YuminosukeSato/amrpredict/internal/report"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// configKey is used to store the loaded config in the command context.
type configKey struct{}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "amrpredict",
		Short: "Predict antimicrobial resistance from gene presence/absence",
		Long: `amrpredict trains penalized logistic regression and random forest models
on a genome x gene presence/absence matrix, selects hyperparameters on a
stratified validation split, scores the held-out test set and reports the
genes that drive the prediction.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			loaded, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := log.Setup(cmd.ErrOrStderr(), loaded.Config.Log.Level, loaded.Config.Log.Format); err != nil {
				return err
			}
			if loaded.FileUsed != "" {
				log.GetLoggerWithName("cli").Debug("Config file loaded", log.PathKey, loaded.FileUsed)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, loaded.Config))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (console|json)")
	pf.StringP("output", "o", "", "artifact directory")
	pf.StringP("format", "f", "", "output format (table|markdown|json|yaml)")
	addDataFlags(pf)

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newSplitCommand())
	rootCmd.AddCommand(newGridCommand())
	rootCmd.AddCommand(newPredictCommand())
	return rootCmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func addDataFlags(fs *pflag.FlagSet) {
	fs.String("data", "", "gene presence/absence CSV")
	fs.String("id-column", "", "sample id column")
	fs.String("label-column", "", "phenotype column")
	fs.String("delimiter", "", "field delimiter")
	fs.String("positive-class", "", "phenotype treated as positive")
}

func addSplitFlags(fs *pflag.FlagSet) {
	fs.Float64("test-fraction", 0, "held-out test proportion")
	fs.Float64("validation-fraction", 0, "validation proportion of the non-test rows (0 = cross-validation)")
	fs.Int64("test-seed", 0, "seed of the test split")
	fs.Int64("validation-seed", 0, "seed of the validation split or folds")
	fs.Int("cv-folds", 0, "folds used when no validation split is drawn")
}

func addModelFlags(fs *pflag.FlagSet) {
	fs.Float64("mixture", 0, "elastic-net L1 share (1 = lasso)")
	fs.Int64("forest-seed", 0, "random forest seed")
	fs.Int("jobs", 0, "parallel trees per forest (0 = all CPUs)")
	fs.String("metric", "", "selection metric (roc_auc|pr_auc)")
	fs.Int("workers", 0, "parallel grid entries (0 = all CPUs)")
}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func dataPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Data.Path == "" {
		return "", errors.NewConfigError("data.path", "no input file: pass it as an argument, with --data or in the config file")
	}
	return cfg.Data.Path, nil
}

func rendererFor(cmd *cobra.Command, cfg *config.Config) (*report.Renderer, error) {
	return report.NewRenderer(cmd.OutOrStdout(), cfg.Output.Format)
}
