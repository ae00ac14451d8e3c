package ymodem

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	console "github.com/phsym/console-slog"
)

// Logger is the structured logger used by the transmitter.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With creates a child logger with additional context.
	With(keysAndValues ...any) Logger
}

// SlogLogger adapts a *slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger writing to w at the given level. With
// consoleFormat set, records are rendered for humans; otherwise as JSON.
func NewSlogLogger(w io.Writer, level slog.Level, consoleFormat bool) *SlogLogger {
	var handler slog.Handler
	if consoleFormat {
		handler = console.NewHandler(w, &console.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) With(keysAndValues ...any) Logger {
	return &SlogLogger{logger: l.logger.With(keysAndValues...)}
}

// FileLogger writes JSON logs to a file
type FileLogger struct {
	*SlogLogger
	file *os.File
}

// NewFileLogger creates a debug-level logger that appends to path
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		SlogLogger: NewSlogLogger(file, slog.LevelDebug, false),
		file:       file,
	}, nil
}

func (l *FileLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

func (n NoopLogger) With(...any) Logger { return n }

// maxLoggedBytes caps the hex dump of a single write.
const maxLoggedBytes = 32

// LoggingWriter wraps a writer and logs all writes
type LoggingWriter struct {
	writer io.Writer
	logger Logger
}

func NewLoggingWriter(writer io.Writer, logger Logger) *LoggingWriter {
	return &LoggingWriter{
		writer: writer,
		logger: logger,
	}
}

func (lw *LoggingWriter) Write(p []byte) (int, error) {
	n, err := lw.writer.Write(p)
	data := p[:n]
	truncated := false
	if len(data) > maxLoggedBytes {
		data = data[:maxLoggedBytes]
		truncated = true
	}
	lw.logger.Debug("channel write", "len", n, "data", hex.EncodeToString(data), "truncated", truncated)
	if err != nil {
		lw.logger.Error("channel write failed", "error", err)
	}
	return n, err
}

// loggingChannel logs outbound traffic of a Channel.
type loggingChannel struct {
	Channel
	w *LoggingWriter
}

func newLoggingChannel(ch Channel, logger Logger) Channel {
	return &loggingChannel{Channel: ch, w: NewLoggingWriter(channelWriter{ch}, logger)}
}

func (c *loggingChannel) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// channelWriter exposes only the Write method of a Channel.
type channelWriter struct {
	ch Channel
}

func (w channelWriter) Write(p []byte) (int, error) {
	return w.ch.Write(p)
}
