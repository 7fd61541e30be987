package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	amrerrors "github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// ZerologLogger is the default Logger implementation.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: zl}
}

// Debug implements Logger.Debug.
func (z *ZerologLogger) Debug(msg string, fields ...any) {
	z.emit(z.logger.Debug(), msg, fields)
}

// Info implements Logger.Info.
func (z *ZerologLogger) Info(msg string, fields ...any) {
	z.emit(z.logger.Info(), msg, fields)
}

// Warn implements Logger.Warn.
func (z *ZerologLogger) Warn(msg string, fields ...any) {
	z.emit(z.logger.Warn(), msg, fields)
}

// Error implements Logger.Error. A leading error value is attached under
// "error" together with its stack trace.
func (z *ZerologLogger) Error(msg string, fields ...any) {
	ev := z.logger.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceKey, st)
			}
			fields = fields[1:]
		}
	}
	z.emit(ev, msg, fields)
}

// With implements Logger.With.
func (z *ZerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), normalize(fields[i+1]))
	}
	return &ZerologLogger{logger: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.logger.GetLevel() <= toZerologLevel(level)
}

func (z *ZerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func normalize(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ===========================================================================
// Global provider
// ===========================================================================

type zerologProvider struct {
	mu     sync.RWMutex
	base   zerolog.Logger
	custom Logger
	json   bool
}

var provider = newZerologProvider(os.Stderr, false)

func newZerologProvider(w io.Writer, jsonOutput bool) *zerologProvider {
	p := &zerologProvider{}
	p.base = buildZerolog(w, jsonOutput, zerolog.InfoLevel)
	return p
}

func buildZerolog(w io.Writer, jsonOutput bool, level zerolog.Level) zerolog.Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	provider.mu.RLock()
	defer provider.mu.RUnlock()
	if provider.custom != nil {
		return provider.custom
	}
	return &ZerologLogger{logger: provider.base}
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetLevel sets the minimum level of the default zerolog backend.
func SetLevel(level Level) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.base = provider.base.Level(toZerologLevel(level))
}

// SetOutput redirects the zerolog backend to w, keeping level and format.
func SetOutput(w io.Writer) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.base = buildZerolog(w, provider.json, provider.base.GetLevel())
}

// SetGlobalLogger replaces the process-wide logger, e.g. with a TestLogger.
// Passing nil restores the zerolog backend.
func SetGlobalLogger(l Logger) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.custom = l
}

// Setup configures the zerolog backend from configuration values and routes
// library warnings (convergence, undefined metrics) through it.
func Setup(w io.Writer, level string, format string) error {
	lvl, ok := ParseLevel(level)
	if !ok {
		return amrerrors.NewConfigErrorf("log.level", "unknown log level %q", level)
	}
	var jsonOutput bool
	switch format {
	case "", "console":
	case "json":
		jsonOutput = true
	default:
		return amrerrors.NewConfigErrorf("log.format", "unknown log format %q", format)
	}

	provider.mu.Lock()
	provider.base = buildZerolog(w, jsonOutput, toZerologLevel(lvl))
	provider.json = jsonOutput
	provider.custom = nil
	provider.mu.Unlock()

	amrerrors.SetZerologWarnFunc(func(warning error) {
		GetLoggerWithName("warnings").Warn(warning.Error(), "warning", warning)
	})
	return nil
}
