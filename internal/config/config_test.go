package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amrpredict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("data", "", "")
	fs.Float64("test-fraction", 0, "")
	fs.Int64("test-seed", 0, "")
	fs.String("metric", "", "")
	fs.Int("top-k", 0, "")
	fs.String("unrelated", "", "")
	return fs
}

func configKey(t *testing.T, err error) string {
	t.Helper()
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
	return cfgErr.Key
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, res.FileUsed)

	cfg := res.Config
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "Resistant", cfg.Label.PositiveClass)
	assert.Equal(t, 0.25, cfg.Split.TestFraction)

	penalties, err := cfg.Logistic.PenaltyValues()
	require.NoError(t, err)
	assert.Len(t, penalties, DefaultPenaltyLevels)
	assert.InDelta(t, 1e-4, penalties[0], 1e-15)
	assert.InDelta(t, 1e-1, penalties[len(penalties)-1], 1e-12)

	grid, err := cfg.Forest.Grid()
	require.NoError(t, err)
	assert.Len(t, grid, 2*3*2)
}

func TestLoad_Precedence(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
data:
  path: genes.csv
  metadata_columns: [genome_id]
split:
  test_fraction: 0.3
  test_seed: 7
logistic:
  penalties: [0.1, 0.01]
forest:
  trees: [50]
importance:
  top_k: 5
`)

	t.Run("file over defaults", func(t *testing.T) {
		res, err := Load(path, nil)
		require.NoError(t, err)
		cfg := res.Config
		assert.Equal(t, path, res.FileUsed)
		assert.Equal(t, "genes.csv", cfg.Data.Path)
		assert.Equal(t, []string{"genome_id"}, cfg.Data.MetadataColumns)
		assert.Equal(t, 0.3, cfg.Split.TestFraction)
		assert.Equal(t, int64(7), cfg.Split.TestSeed)
		assert.Equal(t, []float64{0.1, 0.01}, cfg.Logistic.Penalties)
		assert.Equal(t, []int{50}, cfg.Forest.Trees)
		assert.Equal(t, 5, cfg.Importance.TopK)
		// untouched keys keep their defaults
		assert.Equal(t, DefaultValidationFraction, cfg.Split.ValidationFraction)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("AMRPREDICT_SPLIT__TEST_FRACTION", "0.2")
		t.Setenv("AMRPREDICT_FOREST__MTRY_FRACTIONS", "0.2, 0.4")
		t.Setenv("AMRPREDICT_EVALUATION__METRIC", "pr_auc")

		res, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.2, res.Config.Split.TestFraction)
		assert.Equal(t, []float64{0.2, 0.4}, res.Config.Forest.MtryFractions)
		assert.Equal(t, "pr_auc", res.Config.Evaluation.Metric)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("AMRPREDICT_SPLIT__TEST_FRACTION", "0.2")
		fs := testFlags()
		require.NoError(t, fs.Parse([]string{"--test-fraction=0.4", "--test-seed=99", "--unrelated=x"}))

		res, err := Load(path, fs)
		require.NoError(t, err)
		assert.Equal(t, 0.4, res.Config.Split.TestFraction)
		assert.Equal(t, int64(99), res.Config.Split.TestSeed)
		// unset flags do not clobber the file
		assert.Equal(t, "genes.csv", res.Config.Data.Path)
		assert.Equal(t, 5, res.Config.Importance.TopK)
	})
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(DefaultConfigFile, []byte("label:\n  positive_class: R\n"), 0o600))

	res, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigFile, res.FileUsed)
	assert.Equal(t, "R", res.Config.Label.PositiveClass)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "split:\n  test_fraction: 1.5\n"), nil)
	assert.Equal(t, "split.test_fraction", configKey(t, err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		key    string
	}{
		{"empty id column", func(c *Config) { c.Data.IDColumn = "" }, "data.id_column"},
		{"label equals id", func(c *Config) { c.Data.LabelColumn = c.Data.IDColumn }, "data.label_column"},
		{"two-char delimiter", func(c *Config) { c.Data.Delimiter = ";;" }, "data.delimiter"},
		{"empty positive class", func(c *Config) { c.Label.PositiveClass = "" }, "label.positive_class"},
		{"test fraction zero", func(c *Config) { c.Split.TestFraction = 0 }, "split.test_fraction"},
		{"validation fraction one", func(c *Config) { c.Split.ValidationFraction = 1 }, "split.validation_fraction"},
		{"no validation and one fold", func(c *Config) {
			c.Split.ValidationFraction = 0
			c.Split.CVFolds = 1
		}, "split.cv_folds"},
		{"no model family", func(c *Config) {
			c.Logistic.Enabled = false
			c.Forest.Enabled = false
		}, "logistic.enabled"},
		{"mixture above one", func(c *Config) { c.Logistic.Mixture = 1.2 }, "logistic.mixture"},
		{"negative penalty", func(c *Config) { c.Logistic.Penalties = []float64{0.1, -1} }, "logistic.penalties"},
		{"zero penalty levels", func(c *Config) { c.Logistic.PenaltyGrid.Levels = 0 }, "logistic.penalty_grid.levels"},
		{"empty tree axis", func(c *Config) { c.Forest.Trees = nil }, "forest"},
		{"mtry above one", func(c *Config) { c.Forest.MtryFractions = []float64{1.5} }, "forest.mtry_fractions"},
		{"unknown metric", func(c *Config) { c.Evaluation.Metric = "f1" }, "evaluation.metric"},
		{"negative top k", func(c *Config) { c.Importance.TopK = -1 }, "importance.top_k"},
		{"unknown output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Equal(t, tt.key, configKey(t, cfg.Validate()))
		})
	}

	t.Run("disabled family skips its grid", func(t *testing.T) {
		cfg := Default()
		cfg.Forest.Enabled = false
		cfg.Forest.Trees = nil
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadOptions(t *testing.T) {
	cfg := Default()
	cfg.Data.Delimiter = "\t"
	cfg.Data.IDColumn = "genome"
	opts := cfg.LoadOptions()
	assert.Equal(t, '\t', opts.Delimiter)
	assert.Equal(t, "genome", opts.IDColumn)
	assert.Equal(t, cfg.Data.MetadataColumns, opts.MetadataColumns)
}

func TestEnvKey(t *testing.T) {
	key, value := envKey("AMRPREDICT_LOGISTIC__PENALTY_GRID__LEVELS", "10")
	assert.Equal(t, "logistic.penalty_grid.levels", key)
	assert.Equal(t, "10", value)

	key, value = envKey("AMRPREDICT_DATA__METADATA_COLUMNS", "a, b")
	assert.Equal(t, "data.metadata_columns", key)
	assert.Equal(t, []string{"a", "b"}, value)
}
