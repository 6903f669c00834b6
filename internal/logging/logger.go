package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/TheGojiOG/serverhost/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process-wide logger from cfg. The composition root owns it
// and passes it down; the returned closer flushes the log file, if any.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	output, closer := buildOutput(cfg)

	options := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}

	if closer == nil {
		closer = nopCloser{}
	}
	return slog.New(handler), closer
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// RedirectStdLog routes the standard library logger (used by some
// dependencies) into logger.
func RedirectStdLog(logger *slog.Logger) {
	log.SetFlags(0)
	log.SetOutput(slogWriter{logger: logger})
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	w.logger.Info(msg)
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	if strings.TrimSpace(cfg.File) == "" {
		return os.Stdout, nil
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	return io.MultiWriter(os.Stdout, fileLogger), fileLogger
}

// ParseLevel maps a config level name to slog; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
