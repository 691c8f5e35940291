package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const logsDir = "logs"

// newLogger writes to stdout and to a daily file under logs/. When the file cannot be
// opened it falls back to stdout only and says so.
func newLogger(level zerolog.Level) (zerolog.Logger, func()) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	fallback := zerolog.New(console).Level(level).With().Timestamp().Logger()

	f, err := openLogFile(time.Now())
	if err != nil {
		fallback.Warn().Err(err).Msg("logging to stdout only")
		return fallback, func() {}
	}

	console.Out = io.MultiWriter(os.Stdout, f)
	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()
	logger.Info().Msg("=== Starting new session ===")
	return logger, func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing log file: %v\n", err)
		}
	}
}

func openLogFile(now time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0750); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}

	logFile := filepath.Join(logsDir, now.Format("2006-01-02")+".log")
	if !isValidLogPath(logFile) {
		return nil, fmt.Errorf("invalid log file path: %s", logFile)
	}
	return os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) // #nosec G304 - path is validated by isValidLogPath
}

// isValidLogPath reports whether path stays inside the logs directory
func isValidLogPath(path string) bool {
	dir, err := filepath.Abs(logsDir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absPath, dir+string(filepath.Separator))
}
