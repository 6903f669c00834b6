package console

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestLogWriterFollow(t *testing.T) {
	dir := t.TempDir()
	lw, err := NewLogWriter(slog.New(slog.NewTextHandler(io.Discard, nil)), LogWriterConfig{
		ServerID:  "srv-1",
		LogDir:    dir,
		MaxSizeMB: 1,
	})
	if err != nil {
		t.Fatalf("NewLogWriter: %v", err)
	}

	b := NewBroadcast(0)
	b.Publish(StreamStdout, "Server started")
	b.Publish(StreamStderr, "WARN low memory")
	b.Complete()

	lw.Follow(context.Background(), b)
	if err := lw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(lw.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[stdout] Server started\n") || !strings.Contains(content, "[stderr] WARN low memory\n") {
		t.Fatalf("unexpected log content %q", content)
	}
	if strings.Index(content, "Server started") > strings.Index(content, "WARN low memory") {
		t.Fatalf("lines out of order: %q", content)
	}
}
