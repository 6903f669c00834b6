package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriterConfig configures the console log of one server.
type LogWriterConfig struct {
	ServerID   string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LogWriter persists console lines to a size-rotated file.
type LogWriter struct {
	serverID string
	out      *lumberjack.Logger
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewLogWriter creates <LogDir>/console.log; rotated files sit next to it.
func NewLogWriter(logger *slog.Logger, cfg LogWriterConfig) (*LogWriter, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	lw := &LogWriter{
		serverID: cfg.ServerID,
		out: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "console.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		logger: logger.With("component", "console_log", "server_id", cfg.ServerID),
	}
	return lw, nil
}

// Path returns the active log file.
func (lw *LogWriter) Path() string {
	return lw.out.Filename
}

// WriteLine appends one line with its timestamp and stream.
func (lw *LogWriter) WriteLine(line Line) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	timestamp := line.Time.Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(lw.out, "[%s] [%s] %s\n", timestamp, line.Stream, line.Text); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Follow writes every line of b until it completes or ctx ends. Write errors
// are logged and do not stop the loop.
func (lw *LogWriter) Follow(ctx context.Context, b *Broadcast) {
	r := b.NewReader()
	for {
		line, err := r.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				lw.logger.Warn("console log stopped", "error", err)
			}
			return
		}
		if err := lw.WriteLine(line); err != nil {
			lw.logger.Warn("failed to write console line", "error", err)
		}
	}
}

// Close closes the log file
func (lw *LogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.out.Close()
}
