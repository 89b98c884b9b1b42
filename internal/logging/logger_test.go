package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// entries decodes every JSON line written to buf.
func entries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var e map[string]interface{}
		require.NoError(t, dec.Decode(&e))
		out = append(out, e)
	}
	return out
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf).WithField("service", "test")

	l.Info("solve started", map[string]interface{}{"variables": 3})

	got := entries(t, &buf)
	require.Len(t, got, 1)
	e := got[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "solve started", e["message"])
	assert.Equal(t, "test", e["service"])
	assert.Equal(t, float64(3), e["variables"])
	assert.Contains(t, e["caller"], "logging/logger_test.go:")
	assert.NotEmpty(t, e["timestamp"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(WarnLevel, &buf)

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	got := entries(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["message"])
	assert.Equal(t, "error", got[1]["message"])
	assert.Equal(t, WarnLevel, l.Level())

	unknown := New(LogLevel("LOUD"), &buf)
	unknown.Error("dropped")
	assert.Zero(t, buf.Len())
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(DebugLevel, &buf).WithFormat(TextFormat)

	l.Debug("iteration", map[string]interface{}{"value": 1.5, "iteration": 2})

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	fields := strings.Fields(line)
	require.GreaterOrEqual(t, len(fields), 3)
	assert.Equal(t, "DEBUG", fields[1])
	assert.Equal(t, "iteration", fields[2])
	// caller < iteration < value
	caller := strings.Index(line, " caller=")
	iteration := strings.Index(line, " iteration=2")
	value := strings.Index(line, " value=1.5")
	require.Positive(t, caller)
	assert.Less(t, caller, iteration)
	assert.Less(t, iteration, value)
}

func TestLoggerWithFieldsCopies(t *testing.T) {
	var buf bytes.Buffer
	parent := New(InfoLevel, &buf).WithField("a", 1)
	child := parent.WithFields(map[string]interface{}{"b": 2})
	assert.Same(t, parent, parent.WithError(nil))

	parent.Info("parent")
	child.WithError(errors.New("boom")).Info("child")

	got := entries(t, &buf)
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "b")
	assert.Equal(t, float64(1), got[1]["a"])
	assert.Equal(t, float64(2), got[1]["b"])
	assert.Equal(t, "boom", got[1]["error"])
}

func TestLoggerFatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("cannot start")
	assert.Equal(t, 1, code)
	assert.Equal(t, "FATAL", entries(t, &buf)[0]["level"])
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &CtxLogger{New(InfoLevel, &buf).WithField("request_id", "r1")}
	ctx := l.WithContext(context.Background())

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := NewLogger(&Config{Level: "warning", Format: "text", Output: path})
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, l.Level())

	l.Info("dropped")
	l.Warn("kept")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARN  kept")
	assert.NotContains(t, string(data), "dropped")

	_, err = NewLogger(&Config{Format: "xml"})
	assert.Error(t, err)

	l, err = NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, l.Level())
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(InfoLevel, &buf).WithField("service", "test"))

	zl.Debug("filtered")
	zl.Named("solver").With(zap.String("backend", "dummy")).Info("solve finished",
		zap.Int("iterations", 12), zap.Float64s("x", []float64{1, 2}))
	zl.Error("failed", zap.Error(errors.New("boom")))

	got := entries(t, &buf)
	require.Len(t, got, 2)

	e := got[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "solve finished", e["message"])
	assert.Equal(t, "solver", e["logger"])
	assert.Equal(t, "dummy", e["backend"])
	assert.Equal(t, "test", e["service"])
	assert.Equal(t, float64(12), e["iterations"])
	assert.Equal(t, []interface{}{1.0, 2.0}, e["x"])
	assert.Contains(t, e["caller"], "logging/logger_test.go:")

	assert.Equal(t, "ERROR", got[1]["level"])
	assert.Equal(t, "boom", got[1]["error"])
}

func TestNewZap(t *testing.T) {
	l, zl, err := NewZap(&Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, ErrorLevel, l.Level())
	assert.False(t, zl.Core().Enabled(zap.WarnLevel))
	assert.True(t, zl.Core().Enabled(zap.ErrorLevel))

	_, _, err = NewZap(&Config{Format: "xml"})
	assert.Error(t, err)
}
