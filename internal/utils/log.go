// Package utils
package utils

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	once       sync.Once
	logLevel   = "info"
	logFile    string
	setupMutex sync.Mutex
)

// SetupLogger sets the level and optional file of the process logger. It must be
// called before the first GetLogger call to take effect.
func SetupLogger(level, file string) {
	setupMutex.Lock()
	defer setupMutex.Unlock()
	logLevel = level
	logFile = file
}

// GetLogger returns the process-wide logger.
func GetLogger() *zerolog.Logger {
	once.Do(func() {
		setupMutex.Lock()
		defer setupMutex.Unlock()

		logger = NewLogger(logLevel, logOutput(logFile, os.Stderr))
	})
	return &logger
}

// logOutput opens file for appending, or returns stdout when file is empty or
// cannot be opened. Open failures are reported on errOut.
func logOutput(file string, errOut io.Writer) io.Writer {
	if file == "" {
		return os.Stdout
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fallback := zerolog.New(errOut)
		fallback.Error().Err(err).Str("file", file).Msg("Logger | cannot open log file")
		return os.Stdout
	}
	return f
}

// NewLogger builds a timestamped logger at the given level; unknown levels mean info.
func NewLogger(level string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).With().Timestamp().Str("app", "eps-trader").Logger().Level(lvl)
}
