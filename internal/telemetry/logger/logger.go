package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is what the CLI logs through. Library packages take a
// *slog.Logger instead; see Slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config selects the handler.
type Config struct {
	Level     string    // debug, info, warn or error; empty is info
	Format    string    // text or json; empty is text
	Output    io.Writer // nil is os.Stderr
	AddSource bool
}

// level is shared by every logger New returns, so SetLevel applies to
// loggers already handed out.
var level = new(slog.LevelVar)

// New builds a logger writing to cfg.Output and sets the shared level.
func New(cfg Config) (Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	level.Set(lvl)
	return &slogLogger{logger: slog.New(h), ctx: context.Background()}, nil
}

// SetLevel changes the level of every logger. Unknown names are ignored.
func SetLevel(name string) {
	if lvl, err := parseLevel(name); err == nil {
		level.Set(lvl)
	}
}

// Level returns the current level name.
func Level() string {
	return strings.ToLower(level.Level().String())
}

// ValidLevel reports whether New accepts name.
func ValidLevel(name string) bool {
	_, err := parseLevel(name)
	return err == nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logger: unknown level %q", name)
}

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any) { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any) { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...), ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{logger: l.logger, ctx: ctx}
}

// Slog returns the *slog.Logger behind l. Other Logger implementations
// get slog.Default.
func Slog(l Logger) *slog.Logger {
	if sl, ok := l.(*slogLogger); ok {
		return sl.logger
	}
	return slog.Default()
}

var defaultLogger atomic.Pointer[slogLogger]

func init() {
	l, _ := New(Config{})
	defaultLogger.Store(l.(*slogLogger))
}

// SetDefault makes l the package default and, through Slog, the slog
// default.
func SetDefault(l Logger) {
	if sl, ok := l.(*slogLogger); ok {
		defaultLogger.Store(sl)
		slog.SetDefault(sl.logger)
	}
}

// Default returns the package default logger.
func Default() Logger {
	return defaultLogger.Load()
}
