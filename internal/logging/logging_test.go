package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nagyistoce/jupyter-client/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriter(t *testing.T) {
	if w := Writer(config.LogConfig{}); w != os.Stderr {
		t.Errorf("empty file should log to stderr, got %T", w)
	}
	if w := Writer(config.LogConfig{File: "discard"}); w != io.Discard {
		t.Errorf("discard should map to io.Discard, got %T", w)
	}

	path := filepath.Join(t.TempDir(), "logs", "console.log")
	w := Writer(config.LogConfig{File: path, MaxSizeMB: 0})
	lj, ok := w.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("file output should rotate, got %T", w)
	}
	defer lj.Close()
	if lj.Filename != path || lj.MaxSize != 1 {
		t.Errorf("lumberjack = %+v", lj)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New(config.LogConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	New(config.LogConfig{Level: "warn", Format: "json"}, &buf).Warn("shown", "channel", "broadcast")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, `"channel":"broadcast"`) {
		t.Errorf("json output missing attribute: %s", out)
	}

	buf.Reset()
	New(config.LogConfig{}, &buf).Info("text", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestSetupFileCloser(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "kc.log")
	logger, closer := Setup(config.LogConfig{File: path})
	logger.Info("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file = %q", data)
	}
}
