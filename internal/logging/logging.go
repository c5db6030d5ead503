// Package logging sends the process-wide slog logger to a rotating file so
// the chat terminal only ever shows conversation output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	// File is the log path. Empty selects DefaultFile.
	File      string
	Level     string
	MaxSizeMB int
	// Debug forces the debug level.
	Debug     bool
	SessionID string
}

// DefaultFile returns ~/.local/state/localchat/localchat.log, or a file in
// the temp dir when the home directory is unknown.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "localchat.log")
	}
	return filepath.Join(home, ".local", "state", "localchat", "localchat.log")
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
	return l, nil
}

// Setup installs the default slog logger. The returned closer flushes and
// closes the log file.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		level = slog.LevelDebug
	}

	file := opts.File
	if file == "" {
		file = DefaultFile()
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("logging: mkdir: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}

	logger := slog.New(slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: level}))
	if opts.SessionID != "" {
		logger = logger.With("session", opts.SessionID)
	}
	slog.SetDefault(logger)
	return rotator, nil
}
