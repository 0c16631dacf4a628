// Package logging builds the slog logger shared by every command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nagyistoce/jupyter-client/internal/config"
)

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Writer returns where log output should go. A file path gets a rotating
// writer so a long console session cannot fill the disk.
func Writer(c config.LogConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(c.File)) {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	case "discard", "none":
		return io.Discard
	}
	if dir := filepath.Dir(c.File); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	return &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    max(c.MaxSizeMB, 1),
		MaxBackups: max(c.MaxBackups, 1),
		MaxAge:     max(c.MaxAgeDays, 1),
		Compress:   c.Compress,
	}
}

// New builds a logger writing to w in the configured format.
func New(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	var h slog.Handler
	if strings.ToLower(c.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Setup builds the logger from config and installs it as the slog default.
// The returned closer flushes and closes a log file, if one was opened.
func Setup(c config.LogConfig) (*slog.Logger, io.Closer) {
	w := Writer(c)
	logger := New(c, w)
	slog.SetDefault(logger)

	if closer, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		return logger, closer
	}
	return logger, nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
