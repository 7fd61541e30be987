package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/amrpredict/internal/report"
	"github.com/YuminosukeSato/amrpredict/internal/testdata"
	"github.com/YuminosukeSato/amrpredict/pipeline"
	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

const smallGrid = `logistic:
  penalties: [0.001, 0.01, 0.05]
forest:
  trees: [15]
  mtry_fractions: [0.3]
  min_leaf_sizes: [1]
output:
  plots: false
log:
  level: warn
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() { _ = log.Setup(io.Discard, "info", "console") })
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// workspace writes the synthetic matrix and a small config into a temp dir.
func workspace(t *testing.T) (dataPath, cfgPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	dataPath = filepath.Join(dir, "amr.csv")
	f, err := os.Create(dataPath)
	require.NoError(t, err)
	require.NoError(t, testdata.WriteCSV(f, testdata.Matrix(testdata.Workshop)))
	require.NoError(t, f.Close())

	cfgPath = filepath.Join(dir, "amrpredict.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(smallGrid), 0o644))
	return dataPath, cfgPath, filepath.Join(dir, "out")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "amrpredict v"+Version)
}

func TestGridCommand(t *testing.T) {
	out, _, err := execute(t, "grid", "--format", "json")
	require.NoError(t, err)

	var views []report.GridView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "logistic", views[0].Model)
	assert.Len(t, views[0].Candidates, 30)
	assert.Len(t, views[1].Candidates, 12)
}

func TestSplitCommand(t *testing.T) {
	data, _, _ := workspace(t)
	out, _, err := execute(t, "split", data, "--test-fraction", "0.2", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "test: 20")
	assert.Contains(t, out, "test_fraction: 0.2")
}

func TestRunAndPredict(t *testing.T) {
	data, cfg, outDir := workspace(t)

	out, errOut, err := execute(t, "run", "--config", cfg, "--data", data, "--output", outDir, "--format", "json", "--top-k", "4")
	require.NoError(t, err)
	assert.Contains(t, errOut, "artifacts written to")

	var s report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	require.Len(t, s.Models, 2)
	assert.Len(t, s.Models[0].Importances, 4)
	assert.Len(t, s.Models[0].Grid, 3)
	assert.Equal(t, 3, len(s.Recipe.Dropped))

	runDir := filepath.Join(outDir, s.RunID)
	assert.FileExists(t, filepath.Join(runDir, report.SummaryFile))
	assert.FileExists(t, filepath.Join(runDir, "roc_logistic.csv"))
	assert.NoFileExists(t, filepath.Join(runDir, "roc.png"))

	bundle := filepath.Join(runDir, "random_forest.gob")
	require.FileExists(t, bundle)
	out, _, err = execute(t, "predict", "--model", bundle, data, "--format", "json")
	require.NoError(t, err)
	var preds []pipeline.Prediction
	require.NoError(t, json.Unmarshal([]byte(out), &preds))
	require.Len(t, preds, 100)
	assert.Equal(t, "S001", preds[0].ID)
	assert.Equal(t, "ampicillin", preds[0].Metadata["antibiotic"])
}

func TestRunCommand_Errors(t *testing.T) {
	_, cfg, _ := workspace(t)

	_, _, err := execute(t, "run", "--config", cfg)
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "data.path", cfgErr.Key)

	_, _, err = execute(t, "run", "--config", cfg, "--metric", "accuracy", "missing.csv")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "evaluation.metric", cfgErr.Key)

	_, _, err = execute(t, "run", "--config", cfg, filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")

	_, _, err = execute(t, "predict", "data.csv")
	assert.Error(t, err)
}
