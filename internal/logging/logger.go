// Package logging wraps log/slog with rotation and request-scoped fields.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// debug, info, warn, error
	Level string
	// json or text
	Format string
	// stdout, file or both
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	WithCaller bool
}

var global atomic.Pointer[slog.Logger]

type ctxKey struct{}

// Init builds the global logger from cfg and makes it the slog default.
// The returned closer flushes the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.Output == "file" || cfg.Output == "both" {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output %q needs a file path", cfg.Output)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		fw := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		closer = fw
		out = fw
		if cfg.Output == "both" {
			out = io.MultiWriter(os.Stdout, fw)
		}
	}

	logger := New(out, cfg)
	global.Store(logger)
	slog.SetDefault(logger)
	return closer, nil
}

// New builds a logger writing to w without touching the global one.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.WithCaller}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func Get() *slog.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// WithRequestID stores the request id reported by every log call made with
// the returned context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return Get().With(slog.String("request_id", id))
	}
	return Get()
}

func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).DebugContext(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).InfoContext(ctx, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WarnContext(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).ErrorContext(ctx, msg, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
