package logging

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TheGojiOG/serverhost/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "app.log")

	logger, closer := New(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	})

	logger.Debug("hidden")
	logger.Info("test_log", "pid", 42)
	if err := closer.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"test_log"`) || !strings.Contains(string(data), `"pid":42`) {
		t.Fatalf("unexpected log content %q", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestRedirectStdLog(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "std.log")
	logger, closer := New(config.LoggingConfig{Format: "text", File: logPath})

	flags, out := log.Flags(), log.Writer()
	t.Cleanup(func() {
		log.SetFlags(flags)
		log.SetOutput(out)
	})

	RedirectStdLog(logger)
	log.Printf("from the standard logger")
	closer.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "from the standard logger") {
		t.Fatalf("unexpected log content %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
