package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amrerrors "github.com/YuminosukeSato/amrpredict/pkg/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestZerologLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "json") })

	logger := GetLoggerWithName("tuning").With(ModelNameKey, "LogisticRegression")
	logger.Info("grid entry evaluated", GridIndexKey, 3, ROCAUCKey, 0.91)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "grid entry evaluated", entry["message"])
	assert.Equal(t, "tuning", entry[ComponentKey])
	assert.Equal(t, "LogisticRegression", entry[ModelNameKey])
	assert.Equal(t, float64(3), entry[GridIndexKey])
	assert.InDelta(t, 0.91, entry[ROCAUCKey], 1e-12)
}

func TestZerologLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "warn", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "json") })

	logger := GetLogger()
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}

func TestZerologLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "info", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "json") })

	GetLogger().Error("fit failed", fmt.Errorf("singular"), OperationKey, OperationFit)
	out := buf.String()
	assert.Contains(t, out, `"error":"singular"`)
	assert.Contains(t, out, `"ml.operation":"fit"`)
}

func TestSetOutput_KeepsLevelAndFormat(t *testing.T) {
	require.NoError(t, Setup(&bytes.Buffer{}, "warn", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "json") })

	var buf bytes.Buffer
	SetOutput(&buf)
	GetLogger().Info("hidden")
	GetLogger().Warn("redirected")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"redirected"`)
}

func TestSetup_Invalid(t *testing.T) {
	err := Setup(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)
	var cfgErr *amrerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "log.level", cfgErr.Key)

	err = Setup(&bytes.Buffer{}, "info", "xml")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "log.format", cfgErr.Key)
}

func TestSetup_RoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "info", "json"))
	t.Cleanup(func() { _ = Setup(&bytes.Buffer{}, "info", "json") })

	amrerrors.Warn(amrerrors.NewConvergenceWarning("LogisticRegression", 100, "max_iter reached"))
	assert.Contains(t, buf.String(), "warnings")
	assert.Contains(t, buf.String(), "LogisticRegression")
}

func TestSetGlobalLogger(t *testing.T) {
	tl, _ := NewTestLogger(LevelDebug)
	SetGlobalLogger(tl)
	t.Cleanup(func() { SetGlobalLogger(nil) })

	GetLoggerWithName("recipe").Info("fitted", DroppedKey, 3)
	assert.True(t, tl.ContainsMessage("fitted"))
	assert.True(t, tl.ContainsField(ComponentKey, "recipe"))
	assert.True(t, tl.ContainsField(DroppedKey, float64(3)))
}

func TestTestLogger_Concurrent(t *testing.T) {
	tl, _ := NewTestLogger(LevelInfo)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tl.With(GridIndexKey, i).Info("entry")
		}(i)
	}
	wg.Wait()

	entries, err := tl.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 16)
	assert.Equal(t, 16, strings.Count(tl.String(), "entry"))

	tl.Clear()
	assert.Empty(t, tl.String())
}
