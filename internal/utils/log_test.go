package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	assert.Equal(t, zerolog.DebugLevel, NewLogger("DEBUG", &buf).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, NewLogger("warn", &buf).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("nonsense", &buf).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger("", &buf).GetLevel())
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("info", &buf)

	l.Info().Str("symbol", "AAPL").Msg("Backtest | started")
	l.Debug().Msg("dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, "eps-trader", entry["app"])
	assert.Equal(t, "Backtest | started", entry["message"])
}

func TestGetLoggerIsSingleton(t *testing.T) {
	assert.Same(t, GetLogger(), GetLogger())
}

func TestLogOutput(t *testing.T) {
	var errs bytes.Buffer
	assert.Same(t, os.Stdout, logOutput("", &errs))

	dir := t.TempDir()
	assert.Same(t, os.Stdout, logOutput(dir, &errs), "a directory cannot be opened for writing")
	assert.Contains(t, errs.String(), "Logger | cannot open log file")

	errs.Reset()
	out := logOutput(filepath.Join(dir, "app.log"), &errs)
	f, ok := out.(*os.File)
	require.True(t, ok)
	t.Cleanup(func() { f.Close() })
	assert.Empty(t, errs.String())
}
