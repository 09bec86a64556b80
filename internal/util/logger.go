// Package util holds logging setup and host helpers shared by duelnet's
// commands.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFilePrefix = "duelnet_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level         string
	Directory     string
	RetentionDays int
	// Console mirrors records to Stderr. The battle prompt owns Stdout.
	Console bool
}

// InitLogger points the global zerolog logger at a dated JSON file and,
// optionally, a human-readable console writer. It returns the log file so
// the caller can close it on exit.
func InitLogger(cfg LogConfig) (*os.File, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	logFilePath := filepath.Join(cfg.Directory, logFileName(time.Now()))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Str("app", "duelnet").
		Logger()

	log.Debug().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	if cfg.RetentionDays > 0 {
		go cleanOldLogs(cfg.Directory, cfg.RetentionDays, time.Now())
	}

	return logFile, nil
}

func logFileName(t time.Time) string {
	return fmt.Sprintf("%s%s.log", logFilePrefix, t.Format("2006-01-02"))
}

// cleanOldLogs removes dated log files older than retentionDays. It returns
// the number of files removed.
func cleanOldLogs(directory string, retentionDays int, now time.Time) int {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02",
			strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log"), now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(directory, name)
		if err := os.Remove(path); err == nil {
			removed++
			log.Debug().Str("file", path).Msg("removed old log file")
		}
	}
	return removed
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
